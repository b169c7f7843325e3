package tools

import (
	"fmt"
	"strings"

	"nbupdater/pkg/workbook"
)

// Provider holds the fixed tool set one agent may call. Tool sets are
// built per role at run start; there is no dynamic registration.
type Provider struct {
	tools map[string]Tool
	order []string
}

// NewProvider builds a provider over the given tools. Tool iteration
// order follows the argument order.
func NewProvider(toolList ...Tool) *Provider {
	p := &Provider{tools: make(map[string]Tool, len(toolList))}
	for _, tool := range toolList {
		p.tools[tool.Name()] = tool
		p.order = append(p.order, tool.Name())
	}
	return p
}

// Get retrieves a tool by wire name.
func (p *Provider) Get(name string) (Tool, error) {
	tool, ok := p.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %q not available in this context", name)
	}
	return tool, nil
}

// Definitions returns every tool declaration in registration order.
func (p *Provider) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(p.order))
	for _, name := range p.order {
		defs = append(defs, p.tools[name].Definition())
	}
	return defs
}

// PromptDocumentation concatenates the prompt documentation of every
// tool in the set.
func (p *Provider) PromptDocumentation() string {
	var b strings.Builder
	for _, name := range p.order {
		b.WriteString(p.tools[name].PromptDocumentation())
		b.WriteString("\n")
	}
	return b.String()
}

// ForUpdater builds the editor tool set: the three edit operations,
// full notebook runs, and submission.
func ForUpdater(svc *workbook.UpdateService) *Provider {
	return NewProvider(
		NewReplaceCellTool(svc),
		NewReplaceBlockTool(svc),
		NewInsertTool(svc),
		NewRunNotebookTool(svc.Interaction),
		NewSubmitNotebookTool(svc),
	)
}

// ForSupervisor builds the reviewer tool set: full notebook runs only.
func ForSupervisor(svc *workbook.SupervisionService) *Provider {
	return NewProvider(
		NewRunNotebookTool(svc.Interaction),
	)
}

// ForValidator builds the approver tool set: full notebook runs and
// approval.
func ForValidator(svc *workbook.ValidationService) *Provider {
	return NewProvider(
		NewRunNotebookTool(svc.Interaction),
		NewApproveNotebookTool(svc),
	)
}
