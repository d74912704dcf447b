package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/terrazzo-io/tzctl/pkg/deploy"
	"github.com/terrazzo-io/tzctl/pkg/errors"
)

func newDestroyCmd() *cobra.Command {
	var (
		environment        string
		confirmEnvironment string
		confirmPhrase      string
		confirmProdPhrase  string
		backendType        string
		backendConfig      []string
	)

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear down an environment",
		Long: `Destroy tears down everything the deploy template provisioned for an
environment.

Destruction requires an explicit confirmation: the environment name and the
phrase "destroy <environment>". Destroying prod additionally requires the
phrase "destroy prod permanently". When the confirmation flags are omitted
and stdin is a terminal, the confirmation is prompted interactively.

Examples:
  tzctl destroy -e staging --confirm-environment staging --confirm-phrase "destroy staging"
  tzctl destroy -e prod --confirm-environment prod --confirm-phrase "destroy prod" \
    --confirm-prod-phrase "destroy prod permanently"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			rc, err := newRunContext(backendType, backendConfig)
			if err != nil {
				return err
			}
			orch, err := rc.orchestratorFor(environment)
			if err != nil {
				return err
			}

			fmt.Printf("Project:     %s\n", rc.cfg.Name)
			fmt.Printf("Environment: %s\n", environment)
			fmt.Println()

			confirmation := confirmationFromFlags(confirmEnvironment, confirmPhrase, confirmProdPhrase)
			if confirmation == nil && isInteractive() {
				confirmation, err = promptConfirmation(environment)
				if err != nil {
					return err
				}
			}

			outcome, err := orch.Destroy(ctx, rc.cfg.Name, environment, confirmation)
			if err != nil {
				if remedy := errors.Remediation(err); remedy != "" {
					return fmt.Errorf("%w\n\nRemediation: %s", err, remedy)
				}
				return err
			}

			printDiagnostics(outcome.Warnings, outcome.Errors)

			fmt.Printf("Destroy complete: %d resources destroyed.\n", outcome.Summary.Destroy)
			fmt.Printf("Environment status: %s\n", outcome.Status)

			return adapterFailure("destroy", outcome.Errors)
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Target environment (required)")
	cmd.Flags().StringVar(&confirmEnvironment, "confirm-environment", "", "Confirmation: the target environment name")
	cmd.Flags().StringVar(&confirmPhrase, "confirm-phrase", "", `Confirmation: the phrase "destroy <environment>"`)
	cmd.Flags().StringVar(&confirmProdPhrase, "confirm-prod-phrase", "", "Second confirmation phrase required for prod")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")
	_ = cmd.MarkFlagRequired("environment")

	return cmd
}

// confirmationFromFlags builds the confirmation from the command flags. It
// returns nil when no confirmation flag was given, so a non-interactive call
// without flags reports the confirmation as missing rather than mismatched.
func confirmationFromFlags(envID, phrase, prodPhrase string) *deploy.Confirmation {
	if envID == "" && phrase == "" && prodPhrase == "" {
		return nil
	}
	return &deploy.Confirmation{
		EnvironmentID: envID,
		Phrase:        phrase,
		ProdPhrase:    prodPhrase,
	}
}

// promptConfirmation collects the destroy confirmation interactively.
func promptConfirmation(envID string) (*deploy.Confirmation, error) {
	fmt.Println("This will destroy all infrastructure for the environment.")
	fmt.Println()

	confirmedEnv, err := promptLine(fmt.Sprintf("Type the environment name (%s): ", envID))
	if err != nil {
		return nil, err
	}
	phrase, err := promptLine(fmt.Sprintf("Type the phrase %q: ", "destroy "+envID))
	if err != nil {
		return nil, err
	}

	confirmation := &deploy.Confirmation{EnvironmentID: confirmedEnv, Phrase: phrase}
	if envID == deploy.ProdEnvironmentID {
		prodPhrase, err := promptLine(`This is prod. Type the phrase "destroy prod permanently": `)
		if err != nil {
			return nil, err
		}
		confirmation.ProdPhrase = prodPhrase
	}
	fmt.Println()
	return confirmation, nil
}

func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// isInteractive returns true if the CLI is running in an interactive terminal
// and not in a CI environment.
func isInteractive() bool {
	// Check if stdin is a terminal
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}

	// Check for common CI environment variables
	ciEnvVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"CIRCLECI",
		"JENKINS_URL",
	}
	for _, v := range ciEnvVars {
		if os.Getenv(v) != "" {
			return false
		}
	}

	return true
}
