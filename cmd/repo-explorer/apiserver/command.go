package apiserver

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/repo-explorer/internal/business"
	"github.com/openkcm/repo-explorer/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"api-server",
		"Repository Explorer API server",
		"Serves the GitHub login flow and the authenticated GitHub API proxy for the browser application.",
		buildInfo,
		cmdutils.RunAsService,
		business.Main,
	)
}
