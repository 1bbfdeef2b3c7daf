package migrate

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/repo-explorer/internal/business"
	"github.com/openkcm/repo-explorer/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"migrate",
		"Repository Explorer database migrations",
		"Applies the session table migrations used by the database session store.",
		buildInfo,
		cmdutils.RunAsJob,
		business.MigrateMain,
	)
}
