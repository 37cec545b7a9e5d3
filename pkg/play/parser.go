package play

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Parser loads and validates playbooks.
type Parser struct {
	validator *validator.Validate

	// knownModules is the closed set of module kind tags.
	knownModules map[string]bool

	// knownFacts is the closed set of fact keys guards may reference.
	// When nil, guard key checking is deferred to evaluation time.
	knownFacts map[string]bool
}

// NewParser creates a playbook parser. knownModules and knownFacts define the
// closed vocabularies used for static validation.
func NewParser(knownModules, knownFacts map[string]bool) *Parser {
	return &Parser{
		validator:    validator.New(),
		knownModules: knownModules,
		knownFacts:   knownFacts,
	}
}

// ParseFile loads and validates the playbook at the given path.
func (p *Parser) ParseFile(path string) (*Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playbook: %w", err)
	}

	pb, err := p.Parse(data)
	if err != nil {
		return nil, err
	}
	pb.Source = path
	return pb, nil
}

// Parse validates a playbook document.
func (p *Parser) Parse(data []byte) (*Playbook, error) {
	var plays []Play
	if err := yaml.Unmarshal(data, &plays); err != nil {
		return nil, &PlanError{Reason: fmt.Sprintf("malformed YAML: %v", err)}
	}
	if len(plays) == 0 {
		return nil, &PlanError{Reason: "playbook declares no plays"}
	}

	for pi := range plays {
		plays[pi].Position = pi
		if err := p.validatePlay(&plays[pi]); err != nil {
			return nil, err
		}
	}

	log.Debug().Int("plays", len(plays)).Msg("playbook parsed")
	return &Playbook{Plays: plays}, nil
}

func (p *Parser) validatePlay(pl *Play) error {
	if err := p.validator.Struct(pl); err != nil {
		return &PlanError{Play: pl.Name, Reason: fmt.Sprintf("invalid play: %v", err)}
	}

	for ti := range pl.Tasks {
		task := &pl.Tasks[ti]
		task.Position = ti

		if p.knownModules != nil && !p.knownModules[task.Module] {
			return &PlanError{
				Play:   pl.Name,
				Task:   task.Name,
				Reason: fmt.Sprintf("unknown module %q", task.Module),
			}
		}

		if task.When != nil {
			if err := task.When.Validate(p.knownFacts); err != nil {
				return &PlanError{
					Play:   pl.Name,
					Task:   task.Name,
					Reason: err.Error(),
				}
			}
		}
	}
	return nil
}
