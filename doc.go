// Package ziptree packs a directory tree into a single container file and
// unpacks such a container back into a directory tree.
//
// Traversal is deterministic: each directory contributes its files in name
// order, then its subdirectories, each expanded in full before the next.
// Entry names are portable (forward-slash, relative, no volume or ".."
// segments) regardless of the host that produced them. Payloads are streamed
// in bounded chunks, so memory use does not grow with file size.
//
// Compression, encryption, and container layout belong to a [codec.Codec].
// The default is the ZIP codec in codec/zip, which writes Deflate entries
// and, when a passphrase is given, WinZip AES-256 encryption readable by
// common archive tools.
//
// # Packing
//
//	stats, err := ziptree.Pack(ctx, ziptree.PackRequest{
//	    Source: "./site",
//	    Output: "./out/site.zip",
//	})
//
// # Unpacking
//
// Unpack removes the destination directory first, then recreates it from
// the container:
//
//	_, err := ziptree.Unpack(ctx, ziptree.UnpackRequest{
//	    Archive:     "./out/site.zip",
//	    Destination: "./restored",
//	}, ziptree.UnpackWithExpectedDigest(stats.Digest))
//
// Failures are reported as *EntryError values naming the entry involved;
// use errors.Is with the sentinel errors of this package to classify them.
package ziptree
