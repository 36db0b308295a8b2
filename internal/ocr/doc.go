// Package ocr provides the two text recognition backends used for roster
// screenshots.
//
// Both backends implement Engine:
//
//   - Tesseract: classical OCR through gosseract/v2. Stateless; a fresh
//     client is created for every call.
//   - Neural: a deep-learning detector+reader. The Detector is built lazily
//     by a DetectorFactory, exactly once per engine. ProcessDetector is the
//     production Detector and talks to a helper process over stdio.
//
// # Prerequisites
//
// Tesseract and its language data must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-kor
//   - macOS: brew install tesseract tesseract-lang
//
// The default language tag is "kor+eng". Tags are split on "+" and handed to
// Tesseract as a language list.
//
// # Error Handling
//
// Every backend failure is reported as *EngineError carrying the engine
// name. An engine never returns "" to signal failure; an empty string with a
// nil error means the image genuinely contained no readable text.
//
// WithTimeout bounds individual calls. A timed-out call returns an
// *EngineError wrapping context.DeadlineExceeded.
package ocr
