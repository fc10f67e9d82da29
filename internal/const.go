// Constants
package internal

// Read-stream chunk ceiling. A single pull never buffers more than this.
const CHUNK_SIZE = 0x10000

// Default number of entries a directory stream asks the engine for per batch.
const DIR_BATCH = 0x20

// Capacity of the out-buffers for realpath/readlink (includes the NUL).
const PATH_MAX = 0x1000

// Largest descriptor value callers may pass in.
const FD_MAX = 0x7fffffff

// Kernel linux_dirent64 header is 19 bytes; names are at most 255 bytes + NUL.
// Round up to 8 for the record alignment.
const DIRENT_MAX = 0x118

const DEFAULT_FILE_MODE = 0o666
const DEFAULT_DIR_MODE = 0o777
