// Package deploy implements the deployment orchestration engine: the lock
// manager serializing actions per environment, the confirmation protocol
// guarding destructive actions, and the orchestrator sequencing plan, apply,
// destroy and report calls against a provisioning adapter.
package deploy

import (
	"fmt"

	"github.com/terrazzo-io/tzctl/pkg/errors"
)

// ProdEnvironmentID is the environment that gets the extra safety gates:
// fresh-plan enforcement before apply and a second destroy confirmation.
const ProdEnvironmentID = "prod"

// prodDestroyPhrase is the second confirmation required to destroy prod.
const prodDestroyPhrase = "destroy prod permanently"

// Confirmation is the operator-supplied proof of intent for a destroy. The
// phrases embed the environment name so a confirmation copy-pasted from one
// environment can never destroy another.
type Confirmation struct {
	// EnvironmentID must equal the target environment.
	EnvironmentID string

	// Phrase must be the literal "destroy <environmentId>".
	Phrase string

	// ProdPhrase is required for prod and must be the literal
	// "destroy prod permanently".
	ProdPhrase string
}

// ValidateConfirmation checks a destroy confirmation against the target
// environment. Rules are checked in order and the first violation is
// returned; nothing else (no lock, no adapter call) may happen before this
// passes.
func ValidateConfirmation(envID string, c *Confirmation) error {
	if c == nil {
		return errors.Precondition(errors.ErrCodeDestroyConfirmRequired,
			"destroy requires an explicit confirmation",
			fmt.Sprintf("pass a confirmation for environment %q", envID))
	}

	if c.EnvironmentID != envID {
		return errors.Precondition(errors.ErrCodeDestroyEnvMismatch,
			fmt.Sprintf("confirmation names environment %q but the target is %q", c.EnvironmentID, envID),
			"re-run with a confirmation for the target environment")
	}

	expected := "destroy " + envID
	if c.Phrase != expected {
		return errors.Precondition(errors.ErrCodeDestroyPhraseInvalid,
			fmt.Sprintf("confirmation phrase must be %q", expected),
			fmt.Sprintf("type the phrase %q exactly", expected))
	}

	if envID == ProdEnvironmentID {
		if c.ProdPhrase == "" {
			return errors.Precondition(errors.ErrCodeProdDestroySecondConfirm,
				"destroying prod requires a second confirmation phrase",
				fmt.Sprintf("additionally type the phrase %q", prodDestroyPhrase))
		}
		if c.ProdPhrase != prodDestroyPhrase {
			return errors.Precondition(errors.ErrCodeProdDestroyConfirmInvalid,
				fmt.Sprintf("prod confirmation phrase must be %q", prodDestroyPhrase),
				fmt.Sprintf("type the phrase %q exactly", prodDestroyPhrase))
		}
	}

	return nil
}
