package mcpserver

// Tool descriptions with interpretation guidance for LLMs.

func describeCountResolutions() string {
	return `Counts, for every authorization check (if/switch statement) reachable from an entry point, how many distinct ways the values it compares can be resolved through their definitions.

USE WHEN:
- Sizing the work of reviewing an entry point's access-control checks
- Finding checks whose inputs come from many call targets or fields
- Comparing two versions of a program for changed authorization logic

INTERPRETING RESULTS:
- 1: every value of the check has a single definition chain
- 2-9: a handful of alternatives, usually interface dispatch
- 10+: many alternatives, review with show_definitions
- Counts are exact big integers; recursion is cut at the first repeat

METRICS RETURNED:
- Per entry point: starts, nodes, edges, inline constants, cycles, total resolutions
- Per check: statement, containing method, resolution count`
}

func describeShowDefinitions() string {
	return `Lists the definition strings of every authorization check reachable from an entry point. Each string has the form "$z{N} = <definition>" where $z{N} is a stable alias of a local variable.

USE WHEN:
- Explaining what an access-control check actually compares
- Tracing a permission or UID check back to its sources
- Diffing authorization logic between program versions

INTERPRETING RESULTS:
- Aliases are stable across local renames, so equal strings mean equal logic
- Several definitions for one alias are alternatives (dispatch or merges)
- Leaves such as @parameter0 or constants end a chain

METRICS RETURNED:
- Per entry point: the checks with their definition strings and counts
- Entry points that failed to build or re-bind, with the error`
}
