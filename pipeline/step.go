// Package pipeline holds the shape both the withdrawal (C7) and claim (C8)
// state machines share: a tagged step enum and the atomic
// mutate-then-persist-then-rename cycle that makes a crash between any two
// steps resumable. Grounded on validator/accounts/v2/iface.Wallet's
// read-modify-write-keystore pattern ("mutate in memory, marshal, write to
// disk"), extended with the write-then-rename step spec.md requires for
// POSIX atomicity (shared/fileutil.WriteFile does not rename, so that part
// is new: see internal/atomicfile).
package pipeline

// Step names one stage of the five-step resumable pipeline shape shared by
// withdrawal and claim. NextStep in a persisted status file always names
// the step still to run.
type Step string

const (
	StepWitnessGen Step = "WitnessGen"
	StepPlonky2    Step = "Plonky2"
	StepGnarkStart Step = "GnarkStart"
	StepGnarkFetch Step = "GnarkFetch"
	StepContract   Step = "ContractCall"
)
