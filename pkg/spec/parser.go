// Package spec parses and validates OpenAPI documents ahead of the
// transform step: it normalises authoring defects, resolves the narrow
// subset of $ref pointers the rest of the system understands, and rejects
// constructs the engine cannot execute.
package spec

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
)

// Version identifies the OpenAPI/Swagger dialect of a document.
type Version string

const (
	VersionUnknown Version = "unknown"
	Version20      Version = "2.0"
	Version30      Version = "3.0"
	Version31      Version = "3.1"
)

// maxRefDepth bounds $ref resolution so a malformed or cyclic document
// cannot recurse indefinitely.
const maxRefDepth = 10

// CycleError reports a $ref cycle, carrying the full chain that closed it.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic $ref detected: %s", strings.Join(e.Path, " -> "))
}

// DepthError reports a $ref chain exceeding maxRefDepth.
type DepthError struct {
	Path []string
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("$ref resolution exceeded depth %d: %s", maxRefDepth, strings.Join(e.Path, " -> "))
}

// Parser loads, preprocesses, and validates OpenAPI documents from bytes.
type Parser struct {
	loader   *openapi3.Loader
	detector *ContentDetector
	strict   bool
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithStrictMode rejects unsupported constructs instead of recording them
// as SkippedEndpoints / warnings.
func WithStrictMode() ParserOption {
	return func(p *Parser) { p.strict = true }
}

// NewParser builds a Parser with default (lenient) settings.
func NewParser(opts ...ParserOption) *Parser {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	p := &Parser{
		loader:   loader,
		detector: NewContentDetector(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Strict reports whether the parser rejects unsupported constructs.
func (p *Parser) Strict() bool { return p.strict }

// Parse detects the document's version, preprocesses known authoring
// defects, parses it (down-converting Swagger 2.0 as needed), and validates
// the resulting OpenAPI 3.0 document.
func (p *Parser) Parse(ctx context.Context, data []byte) (*openapi3.T, Version, error) {
	version := DetectVersion(data)

	normalized, err := Preprocess(data, version)
	if err != nil {
		return nil, version, fmt.Errorf("spec: preprocess: %w", err)
	}

	switch version {
	case Version20:
		doc, err := p.parseSwagger(normalized)
		return doc, Version20, err
	case Version31:
		doc, err := p.parseOpenAPI3(ctx, normalized)
		return doc, Version31, err
	case Version30:
		doc, err := p.parseOpenAPI3(ctx, normalized)
		return doc, Version30, err
	default:
		if doc, err := p.parseOpenAPI3(ctx, normalized); err == nil {
			return doc, Version30, nil
		}
		doc, err := p.parseSwagger(normalized)
		return doc, Version20, err
	}
}

func (p *Parser) parseOpenAPI3(ctx context.Context, data []byte) (*openapi3.T, error) {
	jsonData, err := p.detector.ToJSONWithFallback(data)
	if err != nil {
		return nil, fmt.Errorf("convert to JSON: %w", err)
	}

	doc, err := p.loader.LoadFromData(jsonData)
	if err != nil {
		return nil, fmt.Errorf("parse OpenAPI 3.x: %w", err)
	}

	if err := doc.Validate(ctx); err != nil {
		// kin-openapi rejects OpenAPI 3.1's `type: "null"` union member; that
		// shape has no 3.0 equivalent, so the loaded document is returned
		// rather than treated as a parse failure here. The transformer does
		// not skip operations that use it.
		if strings.Contains(err.Error(), `unsupported 'type' value "null"`) {
			return doc, nil
		}
		return nil, fmt.Errorf("validate OpenAPI 3.x: %w", err)
	}

	return doc, nil
}

func (p *Parser) parseSwagger(data []byte) (*openapi3.T, error) {
	jsonData, err := p.detector.ToJSONWithFallback(data)
	if err != nil {
		return nil, fmt.Errorf("convert Swagger 2.0 to JSON: %w", err)
	}

	var swagger openapi2.T
	if err := (&JSONStrategy{}).Unmarshal(jsonData, &swagger); err != nil {
		return nil, fmt.Errorf("unmarshal Swagger 2.0: %w", err)
	}

	doc, err := openapi2conv.ToV3(&swagger)
	if err != nil {
		return nil, fmt.Errorf("convert Swagger 2.0 to OpenAPI 3.0: %w", err)
	}

	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate converted OpenAPI 3.0: %w", err)
	}

	return doc, nil
}

// DetectVersion guesses the OpenAPI/Swagger dialect from raw content using
// the same string heuristics regardless of JSON or YAML encoding.
func DetectVersion(data []byte) Version {
	content := string(data)

	if strings.Contains(content, `"openapi"`) || strings.Contains(content, "openapi:") {
		if strings.Contains(content, `3.1`) {
			return Version31
		}
		if strings.Contains(content, `3.0`) {
			return Version30
		}
	}

	if strings.Contains(content, `"swagger"`) || strings.Contains(content, "swagger:") {
		if strings.Contains(content, "2.0") {
			return Version20
		}
	}

	return VersionUnknown
}

var (
	yamlBooleanField = regexp.MustCompile(`(?m)^(\s*(?:deprecated|required|readOnly|writeOnly|nullable|exclusiveMinimum|exclusiveMaximum|uniqueItems|additionalProperties)\s*:\s*)([01])\s*$`)
	jsonBooleanField = regexp.MustCompile(`("(?:deprecated|required|readOnly|writeOnly|nullable|exclusiveMinimum|exclusiveMaximum|uniqueItems|additionalProperties)"\s*:\s*)([01])([,}\s])`)
)

// Preprocess normalises known authoring defects ahead of strict parsing:
// integer 0/1 literals on boolean-valued fields become false/true, and for
// documents declaring 3.1, common components-section indentation mistakes
// are corrected. Never touches a field whose value is a different integer.
func Preprocess(data []byte, version Version) ([]byte, error) {
	out := data

	if yamlBooleanField.Match(out) {
		out = yamlBooleanField.ReplaceAllFunc(out, func(m []byte) []byte {
			groups := yamlBooleanField.FindSubmatch(m)
			return append(groups[1], []byte(boolWord(groups[2]))...)
		})
	}
	if jsonBooleanField.Match(out) {
		out = jsonBooleanField.ReplaceAllFunc(out, func(m []byte) []byte {
			groups := jsonBooleanField.FindSubmatch(m)
			return []byte(string(groups[1]) + boolWord(groups[2]) + string(groups[3]))
		})
	}

	if version == Version31 {
		out = fixComponentsIndentation(out)
	}

	return out, nil
}

func boolWord(digit []byte) string {
	if string(digit) == "1" {
		return "true"
	}
	return "false"
}

// componentsIndentHeader matches a `components:` section header followed by a
// sub-key indented with 2 spaces where 4 is required for consistent nesting
// with the rest of a 3.1 document; a narrow, documented fix-up rather than
// a general YAML reformatter.
var componentsIndentHeader = regexp.MustCompile(`(?m)^components:\n(  )(\w)`)

func fixComponentsIndentation(data []byte) []byte {
	return componentsIndentHeader.ReplaceAll(data, []byte("components:\n    $2"))
}

// ValidationError is one structured validation finding.
type ValidationError struct {
	Path    string
	Message string
	Fatal   bool
}

// ValidationResult aggregates Validate's findings.
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// Validate runs the semantic checks spec.md §4.3 requires beyond kin-openapi's
// own schema validation: rejection of unsupported security schemes in strict
// mode, and recording them as warnings otherwise.
func Validate(doc *openapi3.T, strict bool) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if doc.Info == nil {
		result.Errors = append(result.Errors, ValidationError{Path: "info", Message: "info object is required", Fatal: true})
		result.Valid = false
	}

	if doc.Components != nil {
		for name, scheme := range doc.Components.SecuritySchemes {
			if scheme.Value == nil {
				continue
			}
			if unsupportedScheme(scheme.Value) {
				msg := fmt.Sprintf("security scheme %q uses an unsupported type/scheme", name)
				if strict {
					result.Errors = append(result.Errors, ValidationError{Path: "components.securitySchemes." + name, Message: msg, Fatal: true})
					result.Valid = false
				} else {
					result.Warnings = append(result.Warnings, ValidationError{Path: "components.securitySchemes." + name, Message: msg})
				}
			}
		}
	}

	return result
}

func unsupportedScheme(s *openapi3.SecurityScheme) bool {
	if s.Type == "oauth2" || s.Type == "openIdConnect" {
		return true
	}
	if s.Type == "http" && (s.Scheme == "oauth" || s.Scheme == "negotiate") {
		return true
	}
	return false
}
