// Package imaging prepares roster screenshots for text recognition.
//
// It covers the image side of the pipeline: decoding screenshots, applying a
// calibrated crop region, deriving preprocessing variants for the OCR
// backends, and rendering and suggesting calibration regions. All operations work with
// standard Go image.Image values and never modify their input.
//
// # Crop Regions
//
// A CropRegion is expressed in fractions of the image size so one calibration
// works across screenshot resolutions. The pixel rectangle for an image of
// width W and height H is
//
//	(floor(W*x), floor(H*y), floor(W*(x+width)), floor(H*(y+height)))
//
// Regions that are malformed, empty on a given image, or extend past its
// edges are rejected with *InvalidRegionError. Regions are never clamped.
//
// SuggestRegion proposes a starting region for calibration: the largest
// block of text-dense windows in a Sobel edge map of a sample screenshot.
//
// # Preprocessing Variants
//
// Variants always returns three images, in this order:
//   - sharpened: grayscale, contrast 1.2, 3x3 sharpen
//   - binarized: grayscale, contrast 1.5, sharpen, luminance > 160 -> white
//   - inverted: grayscale, contrast 1.1, inverted
//
// # Error Handling
//
// Unreadable or empty images are reported as *InputError and bad regions as
// *InvalidRegionError. Both are fatal only for the image concerned; use
// errors.As to branch on them.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. All other functions are stateless
// and may be called concurrently.
package imaging
