// Package types defines the cart item and store state types, the collaborator
// interfaces the cart engine consumes (durable key/value storage, credentials,
// request headers), configuration, and the standard errors shared by every
// cartsync package.
package types
