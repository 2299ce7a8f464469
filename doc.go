// Package descramble recovers the signature and throttling ("n") parameters
// of playback URLs by running the transforms embedded in the platform's
// player script.
//
// Features:
//   - Pattern-based extraction of the transform functions from minified player builds
//   - A sandboxed interpreter for the small script subset those functions use
//   - A permutation fast path for signatures, persisted across runs
//   - Per-format failure containment: a format that cannot be descrambled is dropped, never guessed
//
// Typical use:
//
//	d := descramble.New().WithConfig(cfg)
//	defer d.Close()
//	list, rejected, err := d.ResolveFormats(ctx, playerResponse, videoID, playerURL)
package descramble
