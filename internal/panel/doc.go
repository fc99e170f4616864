// Package panel serves the HomeSense browser control panel.
//
// The page, script and stylesheet under web/ are embedded into the binary.
// A development directory may be given to serve edited assets without a
// rebuild. Unknown paths get 404.
package panel
