// Package ownership implements first-mover company leases across clients.
//
// A client claims a company before working it. The lease is exclusive until
// it expires, is released, or is transferred by an admin. Every lease write
// is a compare-and-swap on the company's ownership epoch, and every change
// of holder appends a row to the ownership ledger in the same transaction.
package ownership
