// Package config defines the configuration of a dagbft node.
//
// Whether the engine is embedded in Go code or started from the command line,
// it uses the Config object defined in this package to store and forward
// configuration options. On top of these options, a node relies on a data
// directory, defined by Config.DataDir, where it expects to find a few
// additional files:
//
//  priv_key       // a plain text file containing the raw private key (cf. dagbft keygen).
//  committee.json // a JSON file containing the authorities and their stake.
//  dagbft.toml    // (optional) configuration values, overridden by flags.
package config
