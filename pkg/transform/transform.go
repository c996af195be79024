// Package transform lowers a validated OpenAPI document into the normalised
// cachemodel.CachedSpec the rest of the system operates on.
package transform

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kioku/aperture/pkg/aperrors"
	"github.com/kioku/aperture/pkg/cachemodel"
)

// CommandMapping carries config-driven renames applied during transform:
// group renames, and per-operation rename/alias/hidden/group-override.
type CommandMapping struct {
	GroupRenames map[string]string // original group -> renamed group
	Operations   map[string]OperationOverride
}

// OperationOverride is one operationId's display customisation.
type OperationOverride struct {
	Group   string
	Name    string
	Aliases []string
	Hidden  bool
}

var methodOrder = []struct {
	method string
	get    func(*openapi3.PathItem) *openapi3.Operation
}{
	{"GET", func(p *openapi3.PathItem) *openapi3.Operation { return p.Get }},
	{"PUT", func(p *openapi3.PathItem) *openapi3.Operation { return p.Put }},
	{"POST", func(p *openapi3.PathItem) *openapi3.Operation { return p.Post }},
	{"DELETE", func(p *openapi3.PathItem) *openapi3.Operation { return p.Delete }},
	{"OPTIONS", func(p *openapi3.PathItem) *openapi3.Operation { return p.Options }},
	{"HEAD", func(p *openapi3.PathItem) *openapi3.Operation { return p.Head }},
	{"PATCH", func(p *openapi3.PathItem) *openapi3.Operation { return p.Patch }},
	{"TRACE", func(p *openapi3.PathItem) *openapi3.Operation { return p.Trace }},
}

// Transform lowers doc into a CachedSpec named name, applying mapping (which
// may be nil). Collisions on (group, name) or alias-vs-name within a group
// are fatal; stale (non-matching) mapping keys are returned as warnings.
func Transform(name string, doc *openapi3.T, mapping *CommandMapping) (*cachemodel.CachedSpec, []string, error) {
	spec := &cachemodel.CachedSpec{
		Name:               name,
		SecuritySchemes:    map[string]cachemodel.CachedSecurityScheme{},
		CacheFormatVersion: cachemodel.CacheFormatVersion,
	}

	if doc.Info != nil {
		spec.Version = doc.Info.Version
	}

	spec.Servers, spec.BaseURL = transformServers(doc.Servers)

	if doc.Components != nil {
		for schemeName, ref := range doc.Components.SecuritySchemes {
			if ref.Value == nil {
				continue
			}
			spec.SecuritySchemes[schemeName] = transformSecurityScheme(ref.Value)
		}
	}

	usedMappingKeys := map[string]bool{}
	seen := map[string]string{} // "(group,name)" or "(group,alias)" -> operationId, for collision detection

	if doc.Paths != nil {
		for path, item := range doc.Paths.Map() {
			for _, m := range methodOrder {
				op := m.get(item)
				if op == nil {
					continue
				}
				if skipped, reason := unsupportedOperation(op); skipped {
					spec.SkippedEndpoints = append(spec.SkippedEndpoints, cachemodel.SkippedEndpoint{
						Method: m.method, Path: path, Reason: reason,
					})
					continue
				}

				cmd := transformOperation(m.method, path, op)
				applyMapping(&cmd, mapping, usedMappingKeys)

				key := cmd.Display.Group + "/" + cmd.Display.Name
				if prior, ok := seen[key]; ok {
					return nil, nil, &aperrors.ConfigError{Reason: fmt.Sprintf(
						"command mapping collision: %q and %q both resolve to %s %s", prior, cmd.OperationID, cmd.Display.Group, cmd.Display.Name)}
				}
				seen[key] = cmd.OperationID
				for _, alias := range cmd.Display.Aliases {
					aliasKey := cmd.Display.Group + "/" + alias
					if prior, ok := seen[aliasKey]; ok {
						return nil, nil, &aperrors.ConfigError{Reason: fmt.Sprintf(
							"command mapping collision: alias %q of %q collides with %q", alias, cmd.OperationID, prior)}
					}
					seen[aliasKey] = cmd.OperationID
				}

				spec.Commands = append(spec.Commands, cmd)
			}
		}
	}

	var warnings []string
	if mapping != nil {
		for opID := range mapping.Operations {
			if !usedMappingKeys[opID] {
				warnings = append(warnings, fmt.Sprintf("command mapping entry for %q does not match any operation", opID))
			}
		}
	}

	return spec, warnings, nil
}

func transformServers(servers openapi3.Servers) ([]cachemodel.Server, string) {
	var out []cachemodel.Server
	for _, s := range servers {
		if s == nil {
			continue
		}
		server := cachemodel.Server{URL: s.URL}
		for name, v := range s.Variables {
			if v == nil {
				continue
			}
			enum := append([]string{}, v.Enum...)
			server.Variables = append(server.Variables, cachemodel.ServerVariable{
				Name: name, Default: v.Default, Enum: enum,
			})
		}
		out = append(out, server)
	}
	base := ""
	if len(out) > 0 {
		base = out[0].URL
	}
	return out, base
}

func transformSecurityScheme(s *openapi3.SecurityScheme) cachemodel.CachedSecurityScheme {
	scheme := cachemodel.CachedSecurityScheme{}
	switch s.Type {
	case "apiKey":
		scheme.Type = cachemodel.SchemeAPIKey
		scheme.ParamName = s.Name
		switch s.In {
		case "header":
			scheme.ParamLocation = cachemodel.LocationHeader
		case "query":
			scheme.ParamLocation = cachemodel.LocationQuery
		}
	default:
		scheme.Type = cachemodel.SchemeHTTP
		scheme.HTTPScheme = s.Scheme
	}

	if ext, ok := s.Extensions["x-aperture-secret"]; ok {
		if secret := parseApertureSecret(ext); secret != nil {
			scheme.Secret = secret
		}
	}

	return scheme
}

// parseApertureSecret decodes the x-aperture-secret extension value, which
// kin-openapi surfaces as json.RawMessage or a plain map depending on
// decode path.
func parseApertureSecret(ext any) *cachemodel.ApertureSecret {
	var raw map[string]any
	switch v := ext.(type) {
	case map[string]any:
		raw = v
	case json.RawMessage:
		_ = json.Unmarshal(v, &raw)
	case []byte:
		_ = json.Unmarshal(v, &raw)
	}
	if raw == nil {
		return nil
	}
	source, _ := raw["source"].(string)
	name, _ := raw["name"].(string)
	if source == "" || name == "" {
		return nil
	}
	return &cachemodel.ApertureSecret{Source: source, Name: name}
}

func unsupportedOperation(op *openapi3.Operation) (bool, string) {
	if op.RequestBody != nil && op.RequestBody.Value != nil {
		for ct := range op.RequestBody.Value.Content {
			if !isSupportedContentType(ct) {
				return true, fmt.Sprintf("unsupported request content type %q", ct)
			}
		}
	}
	return false, ""
}

func isSupportedContentType(ct string) bool {
	return strings.HasPrefix(ct, "application/json") ||
		strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		ct == "text/plain"
}

func transformOperation(method, path string, op *openapi3.Operation) cachemodel.CachedCommand {
	cmd := cachemodel.CachedCommand{
		OperationID:  operationID(method, path, op),
		Method:       method,
		PathTemplate: path,
		Tags:         append([]string{}, op.Tags...),
		Deprecated:   op.Deprecated,
	}

	for _, ref := range op.Parameters {
		if ref.Value == nil {
			continue
		}
		cmd.Parameters = append(cmd.Parameters, transformParameter(ref.Value))
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		cmd.RequestBody = transformRequestBody(op.RequestBody.Value)
	}

	if op.Responses != nil {
		for status, ref := range op.Responses.Map() {
			if ref.Value == nil {
				continue
			}
			desc := ""
			if ref.Value.Description != nil {
				desc = *ref.Value.Description
			}
			cmd.Responses = append(cmd.Responses, cachemodel.CachedResponse{
				StatusCode:  status,
				Description: desc,
				Example:     firstExample(ref.Value.Content),
			})
		}
	}

	if op.Security != nil {
		for _, req := range *op.Security {
			for scheme := range req {
				cmd.SecurityRequirements = append(cmd.SecurityRequirements, scheme)
			}
		}
	}

	group := "default"
	if len(cmd.Tags) > 0 {
		group = kebabCase(cmd.Tags[0])
	}
	cmd.Display = cachemodel.DisplayOverride{
		Group: group,
		Name:  kebabCase(cmd.OperationID),
	}

	return cmd
}

// operationID returns the declared operationId, or a method-based fallback
// when absent.
func operationID(method, path string, op *openapi3.Operation) string {
	if op.OperationID != "" {
		return op.OperationID
	}
	return strings.ToLower(method) + "_" + sanitizePath(path)
}

func sanitizePath(path string) string {
	replacer := strings.NewReplacer("/", "_", "{", "", "}", "")
	return strings.Trim(replacer.Replace(path), "_")
}

func transformParameter(p *openapi3.Parameter) cachemodel.CachedParameter {
	cp := cachemodel.CachedParameter{
		Name:        p.Name,
		Location:    cachemodel.ParamLocation(p.In),
		Required:    p.Required,
		Description: p.Description,
	}

	if p.Schema != nil && p.Schema.Value != nil {
		cp.SchemaType = schemaTypeString(p.Schema.Value)
		if p.Schema.Value.Default != nil {
			cp.Default = fmt.Sprintf("%v", p.Schema.Value.Default)
		}
		for _, e := range p.Schema.Value.Enum {
			cp.EnumValues = append(cp.EnumValues, fmt.Sprintf("%v", e))
		}
	}

	cp.Example = firstParamExample(p)

	return cp
}

func schemaTypeString(s *openapi3.Schema) string {
	if s.Type == nil {
		return "string"
	}
	if len(*s.Type) > 0 {
		return (*s.Type)[0]
	}
	return "string"
}

func firstParamExample(p *openapi3.Parameter) string {
	if p.Example != nil {
		return fmt.Sprintf("%v", p.Example)
	}
	for _, ex := range p.Examples {
		if ex.Value != nil && ex.Value.Value != nil {
			return fmt.Sprintf("%v", ex.Value.Value)
		}
	}
	return ""
}

func transformRequestBody(rb *openapi3.RequestBody) *cachemodel.CachedRequestBody {
	body := &cachemodel.CachedRequestBody{Required: rb.Required}
	for ct, media := range rb.Content {
		body.ContentType = ct
		if media.Schema != nil && media.Schema.Value != nil {
			body.Schema = schemaTypeString(media.Schema.Value)
		}
		body.Example = firstMediaExample(media)
		break
	}
	return body
}

func firstMediaExample(media *openapi3.MediaType) string {
	if media.Example != nil {
		b, _ := json.Marshal(media.Example)
		return string(b)
	}
	for _, ex := range media.Examples {
		if ex.Value != nil && ex.Value.Value != nil {
			b, _ := json.Marshal(ex.Value.Value)
			return string(b)
		}
	}
	return ""
}

func firstExample(content openapi3.Content) string {
	for _, media := range content {
		if ex := firstMediaExample(media); ex != "" {
			return ex
		}
	}
	return ""
}

func applyMapping(cmd *cachemodel.CachedCommand, mapping *CommandMapping, used map[string]bool) {
	if mapping == nil {
		return
	}
	if renamed, ok := mapping.GroupRenames[cmd.Display.Group]; ok {
		cmd.Display.Group = renamed
	}
	if override, ok := mapping.Operations[cmd.OperationID]; ok {
		used[cmd.OperationID] = true
		if override.Group != "" {
			cmd.Display.Group = override.Group
		}
		if override.Name != "" {
			cmd.Display.Name = override.Name
		}
		cmd.Display.Aliases = override.Aliases
		cmd.Display.Hidden = override.Hidden
	}
}

var (
	kebabBoundary  = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	kebabSeparator = regexp.MustCompile(`[_\s]+`)
)

// kebabCase normalises an operationId or tag into lowercase-kebab form:
// camelCase and snake_case boundaries both become hyphens.
func kebabCase(s string) string {
	s = kebabBoundary.ReplaceAllString(s, "$1-$2")
	s = kebabSeparator.ReplaceAllString(s, "-")
	return strings.ToLower(s)
}
