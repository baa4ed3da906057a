// Package providers is a reference reasoner.Provider implementation fanning
// out to real model backends. It is explicitly example glue, analogous to
// the teacher's own features/model/{anthropic,openai,bedrock} adapters: the
// scheduler only depends on reasoner.Provider, never on this package.
package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/roma-engine/roma/reasoner"
	"github.com/roma-engine/roma/romaerr"
)

// Client is the minimal capability a model backend must offer: render a
// prompt and return raw JSON shaped to match the supplied schema. This
// mirrors the teacher's model.Client.Complete in spirit (one blocking
// round-trip per call) but narrows Request/Response to "prompt in, JSON
// out" since every ROMA role consumes a structured decision rather than a
// free-form chat transcript.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, schema *jsonschema.Schema) (json.RawMessage, error)
}

// RolePrompts supplies the system prompt used for each reasoner role. A
// role with no entry is sent an empty system prompt; New does not check
// for missing entries.
type RolePrompts map[reasoner.Role]string

// RoleSchemas supplies the compiled JSON Schema each role's response must
// satisfy before it is unmarshaled, grounded on the teacher's
// tools.TypeSpec.Schema validation pattern (registry/service.go).
type RoleSchemas map[reasoner.Role]*jsonschema.Schema

// provider adapts a Client into a reasoner.Provider, dispatching by Role and
// validating every response against its compiled schema before the
// scheduler ever sees it.
type provider struct {
	client  Client
	prompts RolePrompts
	schemas RoleSchemas
}

// New builds a reasoner.Provider backed by client. Roles missing a prompt
// are dispatched with an empty system prompt, and roles missing a schema
// are dispatched without response validation. A Planner response that
// fails schema validation is returned as a non-retryable InvalidPlan error.
func New(client Client, prompts RolePrompts, schemas RoleSchemas) reasoner.Provider {
	return &provider{client: client, prompts: prompts, schemas: schemas}
}

func (p *provider) Invoke(ctx context.Context, req reasoner.Request) (reasoner.Response, error) {
	prompt, err := renderUserPrompt(req)
	if err != nil {
		return reasoner.Response{}, err
	}
	raw, err := p.client.Complete(ctx, p.prompts[req.Role], prompt, p.schemas[req.Role])
	if err != nil {
		return reasoner.Response{}, fmt.Errorf("%s invocation: %w", req.Role, err)
	}
	if schema := p.schemas[req.Role]; schema != nil {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return reasoner.Response{}, fmt.Errorf("%s response is not valid JSON: %w", req.Role, err)
		}
		if err := schema.Validate(doc); err != nil {
			if req.Role == reasoner.RolePlanner {
				return reasoner.Response{}, romaerr.Wrap(romaerr.KindInvalidPlan, req.NodeID, false, err,
					"%s response failed schema validation", req.Role)
			}
			return reasoner.Response{}, fmt.Errorf("%s response failed schema validation: %w", req.Role, err)
		}
	}
	return decodeResponse(req.Role, raw)
}

// renderUserPrompt flattens a Request's role-specific payload into the
// single prompt string sent to the backend. Real deployments will likely
// want role-specific templates; this reference keeps it to one function
// since the exact prompt format is host policy, not core behavior.
func renderUserPrompt(req reasoner.Request) (string, error) {
	var payload any
	switch req.Role {
	case reasoner.RoleAtomizer:
		payload = req.Atomizer
	case reasoner.RolePlanner:
		payload = req.Planner
	case reasoner.RoleExecutor:
		payload = req.Executor
	case reasoner.RoleAggregator:
		payload = req.Aggregator
	case reasoner.RoleVerifier:
		payload = req.Verifier
	default:
		return "", fmt.Errorf("unknown reasoner role %q", req.Role)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s request: %w", req.Role, err)
	}
	return string(b), nil
}

// decodeResponse unmarshals raw into the Response field matching role.
func decodeResponse(role reasoner.Role, raw json.RawMessage) (reasoner.Response, error) {
	resp := reasoner.Response{Role: role}
	var err error
	switch role {
	case reasoner.RoleAtomizer:
		resp.Atomizer = &reasoner.AtomizerResponse{}
		err = json.Unmarshal(raw, resp.Atomizer)
	case reasoner.RolePlanner:
		resp.Planner = &reasoner.PlannerResponse{}
		err = json.Unmarshal(raw, resp.Planner)
	case reasoner.RoleExecutor:
		resp.Executor = &reasoner.ExecutorResponse{}
		err = json.Unmarshal(raw, resp.Executor)
	case reasoner.RoleAggregator:
		resp.Aggregator = &reasoner.AggregatorResponse{}
		err = json.Unmarshal(raw, resp.Aggregator)
	case reasoner.RoleVerifier:
		resp.Verifier = &reasoner.VerifierResponse{}
		err = json.Unmarshal(raw, resp.Verifier)
	default:
		return reasoner.Response{}, fmt.Errorf("unknown reasoner role %q", role)
	}
	if err != nil {
		return reasoner.Response{}, fmt.Errorf("unmarshal %s response: %w", role, err)
	}
	return resp, nil
}

// CompileSchema is a small helper around jsonschema.Compiler for callers
// wiring up RoleSchemas from inline JSON documents, mirroring
// registry/service.go's validatePayloadJSONAgainstSchema.
func CompileSchema(name string, schemaJSON []byte) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema %q: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %q: %w", name, err)
	}
	schema, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", name, err)
	}
	return schema, nil
}
