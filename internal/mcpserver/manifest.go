package mcpserver

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	manifestSchema = "https://static.modelcontextprotocol.io/schemas/2025-10-17/server.schema.json"
	serverName     = "io.github.panbanda/acminer"
	defaultImage   = "ghcr.io/panbanda/acminer"
)

// Manifest is the registry entry (server.json) for the acminer server.
type Manifest struct {
	Schema      string      `json:"$schema"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Version     string      `json:"version"`
	Repository  *Repository `json:"repository,omitempty"`
	Packages    []Package   `json:"packages"`
}

type Repository struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Package is one way to launch the server.
type Package struct {
	RegistryType         string        `json:"registryType"`
	Identifier           string        `json:"identifier"`
	Version              string        `json:"version,omitempty"`
	PackageArguments     []Argument    `json:"packageArguments,omitempty"`
	EnvironmentVariables []EnvVariable `json:"environmentVariables,omitempty"`
	Transport            Transport     `json:"transport"`
}

type Argument struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// EnvVariable is an environment variable the client may set.
type EnvVariable struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsRequired  bool   `json:"isRequired"`
	Format      string `json:"format,omitempty"`
}

type Transport struct {
	Type string `json:"type"`
}

// ManifestOptions selects what the manifest advertises.
type ManifestOptions struct {
	// Version is the release; "" and "dev" publish as 0.0.0.
	Version string
	// Image is the OCI repository without tag. Defaults to the project
	// image on ghcr.io.
	Image string
}

// NewManifest describes the stdio server started by "acminer mcp".
func NewManifest(opts ManifestOptions) (*Manifest, error) {
	version := opts.Version
	if version == "" || version == "dev" {
		version = "0.0.0"
	}
	image := opts.Image
	if image == "" {
		image = defaultImage
	}
	if strings.Contains(image[strings.LastIndex(image, "/")+1:], ":") {
		return nil, fmt.Errorf("image %q must not carry a tag", image)
	}

	return &Manifest{
		Schema:      manifestSchema,
		Name:        serverName,
		Description: "Count and list the resolutions of the access-control checks of a mined def-use database",
		Version:     version,
		Repository: &Repository{
			URL:    "https://github.com/panbanda/acminer",
			Source: "github",
		},
		Packages: []Package{{
			RegistryType:     "oci",
			Identifier:       image + ":" + version,
			PackageArguments: []Argument{{Type: "positional", Value: "mcp"}},
			EnvironmentVariables: []EnvVariable{{
				Name:        "ACMINER_CONFIG",
				Description: "Config file with the database path and analysis settings",
				Format:      "filepath",
			}},
			Transport: Transport{Type: "stdio"},
		}},
	}, nil
}

// GenerateManifest renders the manifest as indented JSON.
func GenerateManifest(opts ManifestOptions) ([]byte, error) {
	m, err := NewManifest(opts)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
