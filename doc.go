// Package jetcore implements the core storage engine of a single-file
// desktop relational database in the "MDB/ACCDB" family: a paged byte
// store, free-space usage maps, on-disk B-tree indexes, and the row/page
// codec that ties them together.
//
// jetcore is engine-less: it never starts a server process and never
// enforces multi-process locking or crash-safe journaling. A host
// embeds it for direct, in-process access to the file format.
//
// The package is organized around its data flow: a host request enters
// through Database and the minimal Table layer, descends into the
// index subsystem (internal/index) or usage-map accounting
// (internal/usagemap), which in turn read and write through the page
// channel (internal/pagestore), the page codec (internal/codec), and
// the byte channel (internal/ioutil).
package jetcore
