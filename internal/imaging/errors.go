package imaging

import "fmt"

// InputError reports an image that could not be read or decoded.
//
// It is fatal for that single image only; batch callers skip the image,
// report it and continue.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("unreadable image: %v", e.Err)
	}
	return fmt.Sprintf("unreadable image %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// InvalidRegionError reports a crop region that is degenerate or does not
// fit inside the image it is applied to.
type InvalidRegionError struct {
	Region CropRegion
	Reason string
}

func (e *InvalidRegionError) Error() string {
	return fmt.Sprintf("invalid crop region (x=%.4f y=%.4f w=%.4f h=%.4f): %s",
		e.Region.X, e.Region.Y, e.Region.Width, e.Region.Height, e.Reason)
}
