// Package stylize turns photographs into Paprika-style anime renders.
//
// The package owns the inference-session lifecycle and the post-processing
// pipeline. The generative network itself is an opaque Generator supplied by
// a Loader (see package generator for the ONNX and remote backends).
//
// # Public API
//
//   - NewDeviceSelector(opts ...SelectorOption) / (*DeviceSelector).Select(ctx)
//   - Initialize(ctx, device, style, loader, opts ...SessionOption) (*Session, error)
//   - (*Session) Stylize(ctx, img, strength) (*image.RGBA, error)
//   - NewArtifactWriter(dir string) / (*ArtifactWriter) Write(img) (*Artifact, error)
//   - EncodePNG(img) ([]byte, error)
//
// # Quick Start
//
//	device := stylize.NewDeviceSelector().Select(ctx)
//
//	session, err := stylize.Initialize(ctx, device, "paprika", loader)
//	if err != nil {
//	    log.Fatal(err) // always a ModelLoad error
//	}
//	defer session.Close()
//
//	out, err := session.Stylize(ctx, img, 1.0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	artifact, err := stylize.NewArtifactWriter("").Write(out)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer artifact.Release() // the caller owns the file
//
// # Strength
//
// Strength interpolates between the input and the full render:
//
//	out = input + strength*(stylized-input)
//
// Values must lie in [0.1, 2.0]. Exactly 1.0 returns the projector output
// untouched. Values above 1.0 extrapolate and are clamped to [0, 255].
//
// # Error Handling
//
// Every failure is a *Error carrying one of four kinds:
//
//   - KindModelLoad: session construction failed; nothing was returned
//   - KindValidation: bad strength or image; the model was not called
//   - KindInference: the generator failed for this request
//   - KindArtifactWrite: the PNG could not be produced or persisted
//
// Use errors.Is with ErrModelLoad, ErrValidation, ErrInference or
// ErrArtifactWrite, or KindOf(err) to branch on the kind.
//
// # Thread Safety
//
// A Session serializes Stylize calls with a mutex; concurrent callers queue.
// ArtifactWriter is safe for concurrent use because every artifact gets a
// fresh name.
package stylize
