package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/conduit/pkg/reconciler"
	"github.com/cuemby/conduit/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply entities from a YAML file",
	Long: `Create or replace entities on the control plane from a YAML file.

A file holds one or more documents separated by "---". The spec is sent to
the admin API as the entity body unchanged.

  kind: upstream
  metadata:
    id: u1
  spec:
    type: roundrobin
    nodes:
      "10.0.0.1:8080": 1

Examples:
  # Apply a single route
  conduit apply -f route.yaml

  # Apply a bundle of routes, services and upstreams
  conduit apply -f gateway.yaml`,
	RunE: runApply,
}

var deleteCmd = &cobra.Command{
	Use:   "delete KIND ID",
	Short: "Delete an entity from the control plane",
	Args:  cobra.ExactArgs(2),
	RunE:  runDelete,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply, - for stdin (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(deleteCmd)
}

// Resource is one document of an apply file
type Resource struct {
	Kind     string           `yaml:"kind"`
	Metadata ResourceMetadata `yaml:"metadata"`
	Spec     map[string]any   `yaml:"spec"`
}

type ResourceMetadata struct {
	ID string `yaml:"id"`
}

// parseResources reads every document of r and checks it names a known
// kind and an id
func parseResources(r io.Reader) ([]Resource, error) {
	dec := yaml.NewDecoder(r)
	var out []Resource
	for i := 1; ; i++ {
		var res Resource
		err := dec.Decode(&res)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: failed to parse YAML: %w", i, err)
		}
		if res.Kind == "" && res.Metadata.ID == "" && res.Spec == nil {
			continue
		}
		if _, ok := types.ParseKind(res.Kind); !ok {
			return nil, fmt.Errorf("document %d: unsupported kind %q", i, res.Kind)
		}
		if res.Metadata.ID == "" {
			return nil, fmt.Errorf("document %d: metadata.id is required", i)
		}
		if res.Spec == nil {
			res.Spec = map[string]any{}
		}
		out = append(out, res)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no resources found")
	}
	return out, nil
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	var in io.Reader = os.Stdin
	if filename != "-" {
		f, err := os.Open(filename)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		defer f.Close()
		in = f
	}

	resources, err := parseResources(in)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Refresh.Interval = 0

	eng, err := openEngine(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), refreshTimeout)
	defer cancel()

	for _, res := range resources {
		kind, _ := types.ParseKind(res.Kind)
		payload, err := json.Marshal(res.Spec)
		if err != nil {
			return fmt.Errorf("%s %s: %w", kind.Singular(), res.Metadata.ID, err)
		}
		if err := eng.rec.Apply(ctx, kind, res.Metadata.ID, payload); err != nil {
			return err
		}
		fmt.Printf("✓ %s %s applied\n", kind.Singular(), res.Metadata.ID)
	}

	// Bring the cache up to date so offline reads see the writes
	if _, err := eng.rec.Refresh(ctx, reconciler.TriggerWrite); err != nil {
		return fmt.Errorf("applied, but refresh failed: %w", err)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	kind, ok := types.ParseKind(args[0])
	if !ok {
		return fmt.Errorf("unknown kind %q (want routes, services, upstreams or consumers)", args[0])
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Refresh.Interval = 0

	eng, err := openEngine(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), refreshTimeout)
	defer cancel()

	if err := eng.rec.Remove(ctx, kind, args[1]); err != nil {
		return err
	}
	fmt.Printf("✓ %s %s deleted\n", kind.Singular(), args[1])

	if _, err := eng.rec.Refresh(ctx, reconciler.TriggerWrite); err != nil {
		return fmt.Errorf("deleted, but refresh failed: %w", err)
	}
	return nil
}
