// Package cipher encrypts text by permuting its characters through the
// layout of a magic square.
//
// # Overview
//
// The ciphertext for a text of L characters has N² characters, where N is the
// smallest order with N² ≥ L. Output position i takes the character at
// 1-based text position layout[i], or the filler symbol when layout[i] > L.
// The layout is the row-major flattening of a (possibly scrambled) magic
// square, and the key is that layout serialized by package keycodec.
//
// This is an obfuscation exercise. It offers no cryptographic strength.
//
// # Quick Start
//
// Basic mode with defaults:
//
//	res, _ := cipher.Encrypt("HELLO")
//	// res.Key:        "8/1/6/3/5/7/4/9/2"
//	// res.Ciphertext: "_H_LO_L_E"
//
//	plain, err := cipher.Decrypt(res.Ciphertext, res.Key)
//
// # Enhanced Mode
//
// Enhanced mode XORs every character with a random offset in [0, 128) and
// stores the offset in a bit-packed key:
//
//	engine, _ := cipher.NewEngine(cipher.Options{
//	    Mode:            cipher.ModeEnhanced,
//	    Transformations: -1, // one random operation per row of the square
//	})
//	res, _ := engine.Encrypt("attack at dawn")
//	plain, _ := engine.DecryptWithFiller(res.Ciphertext, res.Key, res.Filler)
//
// The filler is moved off any code point an encoded character could take, so
// always decrypt with Result.Filler.
//
// # Key Errors
//
// Decrypt reports rejected keys as *keycodec.KeyError. Use errors.Is with the
// keycodec sentinels (ErrWrongKeySize, ErrWrongKeyContents, ...) or read
// KeyError.Kind for the status message.
//
// # Thread Safety
//
// An Engine holds no mutable state of its own and is safe for concurrent use
// when its Rand is (the default one is).
package cipher
