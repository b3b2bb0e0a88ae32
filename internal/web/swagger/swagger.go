// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package swagger

import (
	_ "embed"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPISpec []byte

// GetOpenAPISpec returns the embedded OpenAPI document.
func GetOpenAPISpec() ([]byte, error) {
	if len(openAPISpec) == 0 {
		return nil, errors.New("openapi spec not embedded")
	}
	return openAPISpec, nil
}

type Handler struct {
	spec []byte
}

// NewHandler rewrites the server URL of the embedded document to baseURL.
func NewHandler(baseURL string) (*Handler, error) {
	spec, err := GetOpenAPISpec()
	if err != nil {
		return nil, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(spec, &doc); err != nil {
		return nil, errors.Wrap(err, "parse openapi spec")
	}

	if baseURL != "" && baseURL != "/" && len(doc.Content) > 0 {
		setServerURL(doc.Content[0], strings.TrimSuffix(baseURL, "/")+"/")
		if spec, err = yaml.Marshal(&doc); err != nil {
			return nil, errors.Wrap(err, "encode openapi spec")
		}
	}

	return &Handler{spec: spec}, nil
}

func setServerURL(root *yaml.Node, url string) {
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "servers" {
			continue
		}
		for _, server := range root.Content[i+1].Content {
			for j := 0; j+1 < len(server.Content); j += 2 {
				if server.Content[j].Value == "url" {
					server.Content[j+1].Value = url
				}
			}
		}
	}
}

// RegisterRoutes expects the API router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/openapi.yaml", h.ServeSpec)
}

func (h *Handler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(h.spec)
}
