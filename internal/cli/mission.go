package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMissionCmd groups daily mission maintenance commands.
func NewMissionCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mission",
		Short: "Manage daily missions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Create today's mission if it does not exist yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			mission, created, err := rt.services.Missions.GenerateDailyMission(cmd.Context())
			if err != nil {
				return err
			}
			state := "existing"
			if created {
				state = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s mission %s: %s (goal %d, reward %d)\n",
				state, mission.ID, mission.Type, mission.Goal, mission.Reward)
			return nil
		},
	})
	return cmd
}
