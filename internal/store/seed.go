package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ggmhub/hub/internal/agents"
	"github.com/ggmhub/hub/internal/cadence"
)

// SeedFile is the YAML document accepted by Import.
//
//	agents:
//	  - name: Monday blog
//	    agent_type: blog_writer
//	    schedule_type: weekly
//	    schedule_day: Monday
//	    schedule_time: "09:00"
//	    config:
//	      persona: head_gardener
type SeedFile struct {
	Agents  []SeedAgent `yaml:"agents"`
	Clients []Client    `yaml:"clients"`
}

type SeedAgent struct {
	Name         string         `yaml:"name"`
	AgentType    string         `yaml:"agent_type"`
	ScheduleType string         `yaml:"schedule_type"`
	ScheduleDay  string         `yaml:"schedule_day"`
	ScheduleTime string         `yaml:"schedule_time"`
	Enabled      *bool          `yaml:"enabled"`
	Config       map[string]any `yaml:"config"`
}

type ImportResult struct {
	AgentsCreated  int
	AgentsUpdated  int
	ClientsCreated int
}

// ImportFile reads a seed document from path and applies it.
func (s *Store) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read seed file: %w", err)
	}
	return s.Import(ctx, data)
}

// Import upserts agents by name and appends clients.
func (s *Store) Import(ctx context.Context, data []byte) (ImportResult, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return ImportResult{}, fmt.Errorf("parse seed file: %w", err)
	}

	for i, a := range seed.Agents {
		if err := a.validate(); err != nil {
			return ImportResult{}, fmt.Errorf("agents[%d]: %w", i, err)
		}
	}

	var res ImportResult
	for _, a := range seed.Agents {
		sch, err := a.schedule()
		if err != nil {
			return res, err
		}
		_, created, err := s.UpsertAgentSchedule(ctx, sch)
		if err != nil {
			return res, err
		}
		if created {
			res.AgentsCreated++
		} else {
			res.AgentsUpdated++
		}
	}

	for _, c := range seed.Clients {
		if _, err := s.CreateClient(ctx, c); err != nil {
			return res, err
		}
		res.ClientsCreated++
	}
	return res, nil
}

func (a SeedAgent) validate() error {
	if a.Name == "" {
		return fmt.Errorf("name is required")
	}
	if a.AgentType == "" {
		return fmt.Errorf("agent_type is required")
	}
	if !cadence.Valid(a.ScheduleType) {
		return fmt.Errorf("invalid schedule_type %q (expected one of %v)", a.ScheduleType, cadence.Types)
	}
	return nil
}

func (a SeedAgent) schedule() (agents.Schedule, error) {
	cfg := "{}"
	if len(a.Config) > 0 {
		b, err := json.Marshal(a.Config)
		if err != nil {
			return agents.Schedule{}, fmt.Errorf("agent %s: encode config: %w", a.Name, err)
		}
		cfg = string(b)
	}
	enabled := true
	if a.Enabled != nil {
		enabled = *a.Enabled
	}
	day := a.ScheduleDay
	if day == "" {
		day = cadence.DefaultWeekday.String()
	}
	at := a.ScheduleTime
	if at == "" {
		at = fmt.Sprintf("%02d:%02d", cadence.DefaultHour, cadence.DefaultMinute)
	}
	return agents.Schedule{
		Name:         a.Name,
		AgentType:    a.AgentType,
		ScheduleType: a.ScheduleType,
		ScheduleDay:  day,
		ScheduleTime: at,
		Enabled:      enabled,
		ConfigJSON:   cfg,
	}, nil
}
