package cli

import (
	"github.com/spf13/cobra"
)

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for scopemem.

To load completions:

Bash:
  $ source <(scopemem completion bash)
  # To load completions for each session, execute once:
  # Linux:
  $ scopemem completion bash > /etc/bash_completion.d/scopemem
  # macOS:
  $ scopemem completion bash > $(brew --prefix)/etc/bash_completion.d/scopemem

Zsh:
  $ source <(scopemem completion zsh)
  # To load completions for each session, execute once:
  $ scopemem completion zsh > "${fpath[1]}/_scopemem"

Fish:
  $ scopemem completion fish | source
  # To load completions for each session, execute once:
  $ scopemem completion fish > ~/.config/fish/completions/scopemem.fish

PowerShell:
  PS> scopemem completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return root.GenBashCompletion(out)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}
