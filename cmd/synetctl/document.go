package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	synet "github.com/nest/nest-simulator-sub010"
)

// Document is the YAML description of a network build. Populations are
// created in file order, so node ids are stable across runs with the same
// document.
type Document struct {
	Threads      int     `yaml:"threads"`
	Seed         uint64  `yaml:"seed"`
	ResolutionMS float64 `yaml:"resolution_ms"`

	Populations []Population  `yaml:"populations"`
	Connections []ConnectRule `yaml:"connections"`
}

// Population declares a named group of nodes.
type Population struct {
	Name string `yaml:"name"`
	Size int    `yaml:"size"`
	Kind string `yaml:"kind"` // "neuron" (default) or "device"
}

// ConnectRule declares one bulk connect between two populations.
type ConnectRule struct {
	Rule   string `yaml:"rule"`
	Source string `yaml:"source"`
	Target string `yaml:"target"`

	Indegree  int     `yaml:"indegree"`
	Outdegree int     `yaml:"outdegree"`
	N         int     `yaml:"n"`
	P         float64 `yaml:"p"`

	Model   string  `yaml:"model"`
	Weight  float64 `yaml:"weight"`
	DelayMS float64 `yaml:"delay_ms"`

	Receptor int `yaml:"receptor"`

	NoAutapses  bool `yaml:"no_autapses"`
	NoMultapses bool `yaml:"no_multapses"`
}

// LoadDocument reads and parses a network document from path.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the document for errors a build would hit anyway, with
// friendlier messages.
func (d *Document) Validate() error {
	if len(d.Populations) == 0 {
		return fmt.Errorf("document declares no populations")
	}

	names := make(map[string]struct{}, len(d.Populations))
	for i, p := range d.Populations {
		if p.Name == "" {
			return fmt.Errorf("population %d has no name", i)
		}
		if p.Size <= 0 {
			return fmt.Errorf("population %q has size %d", p.Name, p.Size)
		}
		if p.Kind != "" && p.Kind != "neuron" && p.Kind != "device" {
			return fmt.Errorf("population %q has unknown kind %q", p.Name, p.Kind)
		}
		if _, dup := names[p.Name]; dup {
			return fmt.Errorf("duplicate population name %q", p.Name)
		}
		names[p.Name] = struct{}{}
	}

	for i, c := range d.Connections {
		if c.Rule == "" {
			return fmt.Errorf("connection %d has no rule", i)
		}
		if _, ok := names[c.Source]; !ok {
			return fmt.Errorf("connection %d references unknown source %q", i, c.Source)
		}
		if _, ok := names[c.Target]; !ok {
			return fmt.Errorf("connection %d references unknown target %q", i, c.Target)
		}
	}
	return nil
}

// Build constructs the network the document describes and returns it along
// with the populations by name.
func (d *Document) Build(ctx context.Context) (*synet.Network, map[string][]synet.NodeID, error) {
	opts := []synet.Option{synet.WithSeed(d.Seed)}
	if d.Threads > 0 {
		opts = append(opts, synet.WithThreads(d.Threads))
	}
	if d.ResolutionMS > 0 {
		opts = append(opts, synet.WithResolution(d.ResolutionMS))
	}

	net, err := synet.New(opts...)
	if err != nil {
		return nil, nil, err
	}

	pops := make(map[string][]synet.NodeID, len(d.Populations))
	for _, p := range d.Populations {
		if p.Kind == "device" {
			pops[p.Name] = net.CreateDevices(p.Size)
		} else {
			pops[p.Name] = net.CreateNeurons(p.Size)
		}
	}

	for i, c := range d.Connections {
		cs := synet.NewConnSpec(c.Rule)
		cs.Indegree = c.Indegree
		cs.Outdegree = c.Outdegree
		cs.N = c.N
		cs.P = c.P
		cs.AllowAutapses = !c.NoAutapses
		cs.AllowMultapses = !c.NoMultapses

		model := c.Model
		if model == "" {
			model = "static_synapse"
		}
		spec := synet.SynSpec{
			Model:    model,
			Weight:   c.Weight,
			DelayMS:  c.DelayMS,
			Receptor: c.Receptor,
		}

		if err := net.Connect(pops[c.Source], pops[c.Target], cs, spec); err != nil {
			return nil, nil, fmt.Errorf("connection %d (%s -> %s): %w", i, c.Source, c.Target, err)
		}
	}

	if err := net.Rebuild(ctx); err != nil {
		return nil, nil, err
	}
	return net, pops, nil
}
