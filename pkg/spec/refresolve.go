package spec

import (
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// ResolveParameterRefs resolves #/components/parameters/<name> references on
// every operation's parameter list, bounded to maxRefDepth and guarded
// against cycles by a visited-set. kin-openapi already dereferences these
// during LoadFromData in the common case; this pass exists for documents
// loaded with external refs disabled or parameters injected after loading
// (e.g. by a CommandMapping), and is the only $ref form this system
// resolves — no other pointer targets are followed.
func ResolveParameterRefs(doc *openapi3.T) error {
	if doc.Paths == nil {
		return nil
	}
	for path, item := range doc.Paths.Map() {
		for method, op := range pathItemOperations(item) {
			resolved, err := resolveParamList(doc, op.Parameters, nil)
			if err != nil {
				return fmt.Errorf("%s %s: %w", method, path, err)
			}
			op.Parameters = resolved
		}
	}
	return nil
}

// pathItemOperations enumerates the HTTP-method operations present on a
// PathItem. kin-openapi exposes these as named fields rather than a map.
func pathItemOperations(item *openapi3.PathItem) map[string]*openapi3.Operation {
	ops := map[string]*openapi3.Operation{}
	add := func(method string, op *openapi3.Operation) {
		if op != nil {
			ops[method] = op
		}
	}
	add("GET", item.Get)
	add("POST", item.Post)
	add("PUT", item.Put)
	add("PATCH", item.Patch)
	add("DELETE", item.Delete)
	add("HEAD", item.Head)
	add("OPTIONS", item.Options)
	add("TRACE", item.Trace)
	return ops
}

func resolveParamList(doc *openapi3.T, params openapi3.Parameters, visited []string) (openapi3.Parameters, error) {
	out := make(openapi3.Parameters, 0, len(params))
	for _, ref := range params {
		resolved, err := resolveParamRef(doc, ref, visited)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

func resolveParamRef(doc *openapi3.T, ref *openapi3.ParameterRef, visited []string) (*openapi3.ParameterRef, error) {
	if ref.Value != nil || ref.Ref == "" {
		return ref, nil
	}

	name, ok := parameterRefName(ref.Ref)
	if !ok {
		return nil, fmt.Errorf("unsupported $ref target %q (only #/components/parameters/<name> is resolved)", ref.Ref)
	}

	for _, v := range visited {
		if v == name {
			path := append(append([]string{}, visited...), name)
			return nil, &CycleError{Path: path}
		}
	}
	if len(visited) >= maxRefDepth {
		path := append(append([]string{}, visited...), name)
		return nil, &DepthError{Path: path}
	}

	if doc.Components == nil {
		return nil, fmt.Errorf("unresolved $ref: #/components/parameters/%s", name)
	}
	target, ok := doc.Components.Parameters[name]
	if !ok {
		return nil, fmt.Errorf("unresolved $ref: #/components/parameters/%s", name)
	}

	return resolveParamRef(doc, target, append(visited, name))
}

func parameterRefName(ref string) (string, bool) {
	const prefix = "#/components/parameters/"
	if !strings.HasPrefix(ref, prefix) {
		return "", false
	}
	return strings.TrimPrefix(ref, prefix), true
}
