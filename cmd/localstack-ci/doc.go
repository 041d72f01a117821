// Command localstack-ci runs LocalStack for CI pipelines.
//
// It starts the community or Pro backend as a container, saves, loads and
// resets backend state through Cloud Pods, and manages remotely hosted
// ephemeral instances.
//
// # Installation
//
//	go install github.com/blackwell-systems/localstack-control-plane/cmd/localstack-ci@latest
//
// # Quick Start
//
//	localstack-ci run --smoke -- go test ./...
//	localstack-ci start -c DEBUG=1,PERSISTENCE=1
//	localstack-ci status
//	localstack-ci state --save ci-baseline
//	localstack-ci ephemeral create pr-42 --lifetime 30
//
// # Credentials
//
// The auth token is never passed on the command line. --auth-token takes a
// handle, env:NAME or file:PATH, and defaults to env:LOCALSTACK_AUTH_TOKEN.
// A .env file in the working directory is loaded before configuration is read.
//
// # Configuration
//
// Flags override LSCI_* environment variables, which override
// $HOME/.localstack-ci/config.yaml or ./config.yaml. See 'localstack-ci config show'.
package main
