package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
	"github.com/adamgarcia4/goLearning/agencysync/endpoint"
	"github.com/adamgarcia4/goLearning/agencysync/heartbeat"
	"github.com/adamgarcia4/goLearning/agencysync/topology"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Inspect or change the cluster Plan",
}

var planBumpCmd = &cobra.Command{
	Use:   "bump",
	Short: "Publish a new Plan version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgency(func(ctx context.Context, c agency.Client) error {
			v, err := agency.IncrementVersion(ctx, c, agency.PlanVersionKey)
			if err != nil {
				return err
			}
			fmt.Printf("Plan/Version is now %d\n", v)
			return nil
		})
	},
}

var planAddCmd = &cobra.Command{
	Use:   "add-server <id> <endpoint>",
	Short: "Add a server to the Plan and bump its version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ep, err := endpoint.Parse(args[1])
		if err != nil {
			return err
		}
		return editServers(func(servers map[string]string) {
			servers[args[0]] = ep.String()
		})
	},
}

var planRemoveCmd = &cobra.Command{
	Use:   "remove-server <id>",
	Short: "Remove a server from the Plan and bump its version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editServers(func(servers map[string]string) {
			delete(servers, args[0])
		})
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show Plan and Current versions and the planned servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgency(func(ctx context.Context, c agency.Client) error {
			plan, err := agency.ReadVersion(ctx, c, agency.PlanVersionKey)
			if err != nil {
				return err
			}
			current, err := agency.ReadVersion(ctx, c, agency.CurrentVersionKey)
			if err != nil {
				return err
			}
			versions := heartbeat.VersionPair{Plan: plan, Current: current}

			// the coordinator's cache does exactly the lookup we need
			cache := topology.NewCache(c, nil)
			if err := cache.HandlePlanChange(ctx, versions); err != nil {
				return err
			}
			fmt.Print(renderPlan(versions, cache.Servers()))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.AddCommand(planBumpCmd, planShowCmd, planAddCmd, planRemoveCmd)
}

// editServers is a read-modify-write of Plan/Servers guarded by compare-and-swap
func editServers(edit func(servers map[string]string)) error {
	return withAgency(func(ctx context.Context, c agency.Client) error {
		old, err := c.Read(ctx, agency.PlanServersKey)
		if errors.Is(err, agency.ErrKeyNotFound) {
			old = ""
		} else if err != nil {
			return err
		}

		servers := map[string]string{}
		if old != "" {
			if err := json.Unmarshal([]byte(old), &servers); err != nil {
				return fmt.Errorf("decoding %s: %w", agency.PlanServersKey, err)
			}
		}
		edit(servers)
		body, err := json.Marshal(servers)
		if err != nil {
			return err
		}

		swapped, err := c.CompareAndSwap(ctx, agency.PlanServersKey, old, string(body))
		if err != nil {
			return err
		}
		if !swapped {
			return fmt.Errorf("%s changed concurrently, try again", agency.PlanServersKey)
		}
		v, err := agency.IncrementVersion(ctx, c, agency.PlanVersionKey)
		if err != nil {
			return err
		}
		fmt.Printf("%d servers planned, Plan/Version is now %d\n", len(servers), v)
		return nil
	})
}

func renderPlan(versions heartbeat.VersionPair, servers []topology.Server) string {
	header := lipgloss.NewStyle().Bold(true)
	out := header.Render(fmt.Sprintf("Plan/Version %d   Current/Version %d", versions.Plan, versions.Current)) + "\n"

	if len(servers) == 0 {
		return out + "no servers planned\n"
	}

	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "ENDPOINT", "ROLE", "STATUS", "APPLIED", "LAST SEEN")
	for _, s := range servers {
		seen := "-"
		if !s.LastSeen.IsZero() {
			seen = s.LastSeen.Format("15:04:05")
		}
		applied := heartbeat.VersionPair{Plan: s.PlanVersion, Current: s.CurrentVersion}
		t.Row(s.ID, s.Endpoint.String(), s.Role, s.Status, applied.String(), seen)
	}
	return out + t.String() + "\n"
}
