package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"paywall-engine/internal/audience"
	"paywall-engine/internal/model"
	"paywall-engine/internal/ruleeval"
)

// campaignFile is the YAML shape paywallctl consumes, mirroring what
// the service loads from postgres.
type campaignFile struct {
	Triggers []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Expression        string `yaml:"expression"`
			ExperimentID      string `yaml:"experiment_id"`
			ExperimentGroupID string `yaml:"experiment_group_id"`
			VariantID         string `yaml:"variant_id"`
			VariantType       string `yaml:"variant_type"`
			PaywallID         string `yaml:"paywall_id"`
			OccurrenceKey     string `yaml:"occurrence_key"`
			OccurrenceMax     int    `yaml:"occurrence_max"`
		} `yaml:"rules"`
	} `yaml:"triggers"`
	Paywalls []model.Paywall `yaml:"paywalls"`
}

func loadCampaign(path string) ([]model.Trigger, []model.Paywall, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var file campaignFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("decode campaign file %s: %w", path, err)
	}

	triggers := make([]model.Trigger, 0, len(file.Triggers))
	for _, t := range file.Triggers {
		trigger := model.Trigger{Name: t.Name}
		for _, r := range t.Rules {
			rule := model.Rule{
				Expression:        r.Expression,
				ExperimentID:      r.ExperimentID,
				ExperimentGroupID: r.ExperimentGroupID,
				Variant: model.Variant{
					ID:        r.VariantID,
					Type:      model.VariantType(strings.ToUpper(r.VariantType)),
					PaywallID: r.PaywallID,
				},
			}
			if r.OccurrenceKey != "" {
				rule.Occurrence = &model.Occurrence{Key: r.OccurrenceKey, MaxCount: r.OccurrenceMax}
			}
			trigger.Rules = append(trigger.Rules, rule)
		}
		triggers = append(triggers, trigger)
	}
	return triggers, file.Paywalls, nil
}

// parseKV turns k=v pairs into typed values: bool, int, float, string.
func parseKV(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		switch {
		case v == "true" || v == "false":
			out[k] = v == "true"
		default:
			if i, err := strconv.Atoi(v); err == nil {
				out[k] = i
			} else if f, err := strconv.ParseFloat(v, 64); err == nil {
				out[k] = f
			} else {
				out[k] = v
			}
		}
	}
	return out, nil
}

func newEvaluateCmd() *cobra.Command {
	var (
		campaignPath string
		eventName    string
		params       []string
		userAttrs    []string
		deviceAttrs  []string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Dry-run an event against a campaign file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			triggers, paywalls, err := loadCampaign(campaignPath)
			if err != nil {
				return err
			}

			store := audience.NewStore()
			store.Replace(triggers, paywalls)
			svc := audience.NewService(store, ruleeval.New())

			p, err := parseKV(params)
			if err != nil {
				return err
			}
			user, err := parseKV(userAttrs)
			if err != nil {
				return err
			}
			device, err := parseKV(deviceAttrs)
			if err != nil {
				return err
			}

			event := model.NewEvent(eventName, p)
			result, _ := svc.EvaluateCurrent(event, ruleeval.Context{
				User:   user,
				Device: device,
				Params: event.Parameters,
			})

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&campaignPath, "campaign", "c", "campaign.yaml", "campaign config file")
	cmd.Flags().StringVarP(&eventName, "event", "e", "", "event name")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "event parameter key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&userAttrs, "user", "u", nil, "user attribute key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&deviceAttrs, "device", "d", nil, "device attribute key=value (repeatable)")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

func newTriggersCmd() *cobra.Command {
	var campaignPath string

	cmd := &cobra.Command{
		Use:   "triggers",
		Short: "List the triggers in a campaign file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			triggers, _, err := loadCampaign(campaignPath)
			if err != nil {
				return err
			}
			for _, t := range triggers {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%d rules)\n", t.Name, len(t.Rules))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&campaignPath, "campaign", "c", "campaign.yaml", "campaign config file")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:   "paywallctl",
		Short: "Inspect and dry-run paywall campaign configurations",
	}
	root.AddCommand(newEvaluateCmd(), newTriggersCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
