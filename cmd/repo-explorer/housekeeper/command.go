package housekeeper

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/repo-explorer/internal/business"
	"github.com/openkcm/repo-explorer/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"housekeeper",
		"Repository Explorer housekeeping job",
		"Deletes sessions whose refresh window has elapsed from the database store.",
		buildInfo,
		cmdutils.RunAsService,
		business.HousekeeperMain,
	)
}
