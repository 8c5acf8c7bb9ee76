// Package channel issues short numeric one-time codes that are delivered
// out of band by SMS or email.
//
// The package never transmits codes. A [Record] carries a freshly issued
// code to the deliverer; persistence layers store [Hasher] digests instead
// of the plaintext and decide consumption with [Classify].
package channel
