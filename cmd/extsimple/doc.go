// Command extsimple inspects and edits simple filesystem images.
//
// Usage:
//
//	extsimple shell   [-image path] [-create] [-compress] [-wipe] [-check] [-metrics addr]
//	extsimple format  [-image path] [-seed manifest.yaml] [-force] [-compress]
//	extsimple check   [-image path]
//	extsimple fixture [-out path] [-verify]
//
// shell opens the interactive console. format writes a fresh image,
// optionally seeded from a YAML manifest. check verifies an image and exits
// non-zero when it is inconsistent. fixture builds the reference image and
// prints its fingerprint.
//
// Flags default to the EXTSIMPLE_* environment variables.
package main
