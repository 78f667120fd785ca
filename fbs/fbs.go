// Package fbs implements functional bootstrapping for RLWE-based schemes:
// the programmable blind rotation of a negacyclic test vector by an
// encrypted LWE phase, using RGSW-based CMUX gates and external products.
//
// Samples are extracted on the fly from the coefficients of a degree-1 RLWE
// ciphertext over a small ring, modulus-switched to twice the degree of the
// bootstrapping ring, and used to rotate the test vector homomorphically.
// The output is one RLWE ciphertext per requested slot, encrypting the table
// value selected by that slot in its constant coefficient.
package fbs
