package environments

type Environment string

const (
	Production  Environment = "production"
	Development Environment = "development"
	Staging     Environment = "staging"
	Test        Environment = "test"
)

// IsProduction reports whether the environment settles real funds. Anything
// else runs the UTXO adapters against test networks by default.
func (e Environment) IsProduction() bool {
	return e == Production || e == "prod"
}
