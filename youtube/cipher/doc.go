/*
Package cipher recovers the two transforms a player script applies to stream
URLs: the signature transform and the throttling ("n") parameter transform.

# Extraction

Extract locates a transform in the player source with a ranked list of name
patterns, isolates its text by brace matching and collects the global
declarations it reads (helper objects, constant arrays) up to a fixed depth.
The result is a self-contained snippet that youtube/jsinterp can run.

# Signature fast path

Signature transforms are pure rearrangements of their input in practice. The
first time a signature of a given shape (lengths of its dot-separated parts)
is seen for a player build, the transform is interpreted once on the real
input and once on a probe string whose code units name their own positions.
The probe output is the PermutationSpec. Later signatures of the same shape
are answered by applying the spec without interpretation.

A spec is only cached when it reproduces the interpreter result on the real
input. In strict mode, the default, the output must also be exactly as long
as the input. When either check fails the build falls back to interpreting
every signature for the rest of the session.

# Failure containment

Every failure is returned as an *Error carrying the stage and player version.
A Session logs one warning per (player, transform, stage) and keeps going;
a broken n transform never prevents signature decryption and vice versa.

# Persistence

Specs, extracted snippets and the player's signature timestamp are stored in
an internal/cache.Cache so that later runs skip extraction and derivation.
*/
package cipher
