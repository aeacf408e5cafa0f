// Package policy implements password-policy evaluation: composition rules,
// strength scoring, common-password rejection, reuse-history comparison, and
// password-age checks.
//
// Evaluation is pure computation over the inputs. The engine is constructed
// once with its configuration and dictionary and is immutable afterward;
// there is no global policy state.
//
// Validity and strength are independent axes: the violations list decides
// pass/fail, the score is advisory. A password can be valid yet score
// "Weak"; a password with any violation is never valid regardless of score.
//
// # What this package must NOT do
//
//   - Perform I/O or touch durable storage. History comparison receives the
//     retained hashes and a comparison primitive from the caller.
//   - Import any other authcore package.
package policy
