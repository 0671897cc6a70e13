package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/bert-suite/server/internal/suite/model"
	"github.com/bert-suite/server/internal/suite/observers"
	"github.com/bert-suite/server/internal/suite/tools"
	logx "github.com/bert-suite/server/pkg/logger"
)

const maxRunSteps = 10

// Pipeline runs the compiled intake and extra graphs.
type Pipeline struct {
	intake compose.Runnable[Request, *model.Payload]
	extra  compose.Runnable[ExtraRequest, json.RawMessage]
}

// GraphBuilder handles the construction of the generation graphs.
type GraphBuilder struct {
	gen    model.StructuredGenerator
	intake *compose.Graph[Request, *model.Payload]
	extra  *compose.Graph[ExtraRequest, json.RawMessage]
}

func genState(context.Context) *RunState {
	return &RunState{}
}

// New builds and compiles both graphs around gen.
func New(ctx context.Context, gen model.StructuredGenerator) (*Pipeline, error) {
	if gen == nil {
		return nil, fmt.Errorf("structured generator is nil")
	}

	b := &GraphBuilder{
		gen:    gen,
		intake: compose.NewGraph[Request, *model.Payload](compose.WithGenLocalState(genState)),
		extra:  compose.NewGraph[ExtraRequest, json.RawMessage](compose.WithGenLocalState(genState)),
	}

	if err := b.addNodes(); err != nil {
		return nil, err
	}
	if err := b.addEdges(); err != nil {
		return nil, err
	}
	return b.compile(ctx)
}

// addNodes adds all processing nodes to both graphs
func (b *GraphBuilder) addNodes() error {
	steps := []error{
		b.intake.AddLambdaNode(NodeRenderIntake,
			NewRenderIntakeNode(),
			compose.WithStatePreHandler(NewRenderIntakePreHandler()),
		),
		b.intake.AddLambdaNode(NodeGenerate,
			NewGenerateNode(b.gen),
			compose.WithStatePreHandler(NewGeneratePreHandler()),
			compose.WithStatePostHandler(NewGeneratePostHandler()),
		),
		b.intake.AddLambdaNode(NodeAssemble, NewAssembleNode()),

		b.extra.AddLambdaNode(NodeRenderExtra,
			NewRenderExtraNode(),
			compose.WithStatePreHandler(NewRenderExtraPreHandler()),
		),
		b.extra.AddLambdaNode(NodeGenerate,
			NewGenerateNode(b.gen),
			compose.WithStatePreHandler(NewGeneratePreHandler()),
			compose.WithStatePostHandler(NewGeneratePostHandler()),
		),
	}
	for _, err := range steps {
		if err != nil {
			logx.Error().Err(err).Msg("Error adding graph node")
			return fmt.Errorf("error adding graph node: %w", err)
		}
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	intakeEdges := [][2]string{
		{compose.START, NodeRenderIntake},
		{NodeRenderIntake, NodeGenerate},
		{NodeGenerate, NodeAssemble},
		{NodeAssemble, compose.END},
	}
	for _, edge := range intakeEdges {
		if err := b.intake.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("error adding intake edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	extraEdges := [][2]string{
		{compose.START, NodeRenderExtra},
		{NodeRenderExtra, NodeGenerate},
		{NodeGenerate, compose.END},
	}
	for _, edge := range extraEdges {
		if err := b.extra.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("error adding extra edge %s->%s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// compile finalizes and compiles both graphs
func (b *GraphBuilder) compile(ctx context.Context) (*Pipeline, error) {
	intake, err := b.intake.Compile(ctx, compose.WithMaxRunSteps(maxRunSteps), compose.WithGraphName("intake"))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling intake graph")
		return nil, fmt.Errorf("error compiling intake graph: %w", err)
	}
	extra, err := b.extra.Compile(ctx, compose.WithMaxRunSteps(maxRunSteps), compose.WithGraphName("extra"))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling extra graph")
		return nil, fmt.Errorf("error compiling extra graph: %w", err)
	}

	logx.Debug().Msg("Generation graphs compiled successfully")
	return &Pipeline{intake: intake, extra: extra}, nil
}

// Generate renders the tool prompt for input, runs the structured
// generation and returns the resulting payload.
func (p *Pipeline) Generate(ctx context.Context, def *tools.Definition, input map[string]string) (*model.Payload, error) {
	out, err := p.intake.Invoke(ctx, Request{Tool: def, Input: input},
		compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("intake graph returned no payload")
	}
	return out, nil
}

// GenerateExtra runs an auxiliary generation against the current payload.
func (p *Pipeline) GenerateExtra(ctx context.Context, def *tools.Definition, extra *tools.Extra, payload *model.Payload) (json.RawMessage, error) {
	return p.extra.Invoke(ctx, ExtraRequest{Tool: def, Extra: extra, Payload: payload},
		compose.WithCallbacks(observers.NewAllCallbacks()))
}
