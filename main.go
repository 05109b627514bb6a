package main

import (
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/ghetzel/cli"
	"github.com/ghetzel/go-stockutil/typeutil"

	"github.com/ghetzel/ipcseg/ipcerr"
	"github.com/ghetzel/ipcseg/managed"
	"github.com/ghetzel/ipcseg/region"
	"github.com/ghetzel/ipcseg/segment"
)

const DefaultLogLevel = `info`

// rawBytes is the only entry type the CLI knows how to construct: a
// fixed-length byte blob, since there is no typed Go program on the other
// end of a shell invocation to supply T. Typed Construct/Find live in the
// managed/segment packages for Go callers.
type rawBytes = byte

// facade is the minimal surface every Managed* backend exposes to the CLI.
// Each verb the CLI supports operates on a name/size pair; the concrete
// backend (posix/file/xsi/anon) is chosen at runtime from the command line,
// so the CLI needs one interface instead of four copy-pasted command trees.
type facade interface {
	Stats() segment.Stats
	Close() error
	Construct(name string, size int) error
	Find(name string) (bool, error)
	Destroy(name string) error
}

type sharedMemoryFacade struct{ m *managed.ManagedSharedMemory }

func (f *sharedMemoryFacade) Stats() segment.Stats { return f.m.Stats() }
func (f *sharedMemoryFacade) Close() error         { return f.m.Close() }

func (f *sharedMemoryFacade) Construct(name string, size int) error {
	_, err := managed.Construct[rawBytes](f.m, name, size, nil)
	return err
}

func (f *sharedMemoryFacade) Find(name string) (bool, error) {
	_, ok, err := managed.Find[rawBytes](f.m, name)
	return ok, err
}

func (f *sharedMemoryFacade) Destroy(name string) error {
	return managed.DestroySharedMemory[rawBytes](f.m, name)
}

type fileFacade struct{ m *managed.ManagedMappedFile }

func (f *fileFacade) Stats() segment.Stats { return f.m.Stats() }
func (f *fileFacade) Close() error         { return f.m.Close() }

func (f *fileFacade) Construct(name string, size int) error {
	_, err := managed.ConstructFile[rawBytes](f.m, name, size, nil)
	return err
}

func (f *fileFacade) Find(name string) (bool, error) {
	_, ok, err := managed.FindFile[rawBytes](f.m, name)
	return ok, err
}

func (f *fileFacade) Destroy(name string) error {
	return managed.DestroyFile[rawBytes](f.m, name)
}

type xsiFacade struct{ x *managed.ManagedXsiSharedMemory }

func (f *xsiFacade) Stats() segment.Stats { return f.x.Stats() }
func (f *xsiFacade) Close() error         { return f.x.Close() }

func (f *xsiFacade) Construct(name string, size int) error {
	_, err := managed.ConstructXsi[rawBytes](f.x, name, size, nil)
	return err
}

func (f *xsiFacade) Find(name string) (bool, error) {
	_, ok, err := managed.FindXsi[rawBytes](f.x, name)
	return ok, err
}

func (f *xsiFacade) Destroy(name string) error {
	return managed.DestroyXsi[rawBytes](f.x, name)
}

type anonFacade struct{ a *managed.ManagedAnonymousSharedMemory }

func (f *anonFacade) Stats() segment.Stats { return f.a.Stats() }
func (f *anonFacade) Close() error         { return f.a.Close() }

func (f *anonFacade) Construct(name string, size int) error {
	_, err := managed.ConstructAnon[rawBytes](f.a, name, size, nil)
	return err
}

func (f *anonFacade) Find(name string) (bool, error) {
	_, ok, err := managed.FindAnon[rawBytes](f.a, name)
	return ok, err
}

func (f *anonFacade) Destroy(name string) error {
	return managed.DestroyAnon[rawBytes](f.a, name)
}

// openFacade dispatches the <backend> <name> positional arguments to the
// matching Managed facade and opens it in mode. size is only meaningful for
// region.Create; every other mode reattaches to whatever size the segment
// was created with, recovering it from the backing store itself.
func openFacade(c *cli.Context, mode region.CreateMode, size uintptr) (facade, error) {
	backend := c.Args().First()
	name := c.Args().Get(1)

	switch backend {
	case `posix`:
		m, err := managed.OpenManagedSharedMemory(name, size, mode, nil)
		if err != nil {
			return nil, err
		}

		return &sharedMemoryFacade{m}, nil
	case `file`:
		m, err := managed.OpenManagedMappedFile(name, size, mode, nil)
		if err != nil {
			return nil, err
		}

		return &fileFacade{m}, nil
	case `xsi`:
		id, err := strconv.Atoi(c.String(`xsi-id`))
		if err != nil {
			return nil, ipcerr.New(ipcerr.InvalidArgument, "xsi backend requires --xsi-id")
		}

		x, err := managed.OpenManagedXsiSharedMemory(name, id, size, mode, nil)
		if err != nil {
			return nil, err
		}

		return &xsiFacade{x}, nil
	case `anon`:
		a, err := managed.NewManagedAnonymousSharedMemory(size, nil)
		if err != nil {
			return nil, err
		}

		return &anonFacade{a}, nil
	default:
		return nil, ipcerr.Newf(ipcerr.InvalidArgument, "unknown backend %q (want posix, file, xsi, or anon)", backend)
	}
}

// withBackend opens or creates the named backend, hands its freshly-opened
// Stats to cb, and always closes it afterward.
func withBackend(c *cli.Context, mode region.CreateMode, size uintptr, cb func(segment.Stats)) {
	f, err := openFacade(c, mode, size)
	if err != nil {
		log.Fatalf("Failed to open segment: %v", err)
	}
	defer f.Close()

	cb(f.Stats())
}

// withOpenFacade reattaches to an already-created segment and hands it to
// cb, closing it on return.
func withOpenFacade(c *cli.Context, cb func(facade)) {
	f, err := openFacade(c, region.Open, 0)
	if err != nil {
		log.Fatalf("Failed to open segment: %v", err)
	}
	defer f.Close()

	cb(f)
}

func xsiIDFlag() cli.Flag {
	return cli.IntFlag{Name: `xsi-id, x`, Usage: `The XSI key id (xsi backend only)`}
}

func main() {
	app := cli.NewApp()
	app.Name = `ipcseg`
	app.Usage = `a command line utility for creating and inspecting managed shared memory segments`
	app.Version = `1.0.0`
	app.EnableBashCompletion = false
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   `log-level, L`,
			Usage:  `Level of logging verbosity`,
			Value:  DefaultLogLevel,
			EnvVar: `LOGLEVEL`,
		},
	}

	app.Before = func(c *cli.Context) error {
		if lvl := c.String(`log-level`); lvl != `` {
			if l, err := log.ParseLevel(lvl); err == nil {
				log.SetLevel(l)
			} else {
				return fmt.Errorf("invalid log level %q: %v", lvl, err)
			}
		}

		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:      `create`,
			Usage:     `Create a managed segment on the named backend`,
			ArgsUsage: `<backend> <name>`,
			Flags: []cli.Flag{
				cli.IntFlag{Name: `size, s`, Usage: `The size (in bytes) of the segment`},
				xsiIDFlag(),
			},
			Action: func(c *cli.Context) {
				size := c.Int(`size`)
				if size <= 0 {
					log.Fatalf("Must specify a segment size")
				}

				withBackend(c, region.Create, uintptr(size), func(stats segment.Stats) {
					fmt.Printf("created segment: %s bytes\n", typeutil.V(stats.SegmentBytes).String())
				})
			},
		}, {
			Name:      `construct`,
			Usage:     `Construct a raw byte-blob entry inside a managed segment`,
			ArgsUsage: `<backend> <name> <entry-name>`,
			Flags: []cli.Flag{
				cli.IntFlag{Name: `size, s`, Usage: `The size (in bytes) of the entry's byte blob`},
				xsiIDFlag(),
			},
			Action: func(c *cli.Context) {
				entrySize := c.Int(`size`)
				if entrySize <= 0 {
					log.Fatalf("Must specify an entry size")
				}

				entryName := c.Args().Get(2)

				withOpenFacade(c, func(f facade) {
					if err := f.Construct(entryName, entrySize); err != nil {
						log.Fatalf("Failed to construct %q: %v", entryName, err)
					}

					log.Infof("Constructed %q (%d bytes)", entryName, entrySize)
				})
			},
		}, {
			Name:      `find`,
			Usage:     `Look up an entry inside a managed segment`,
			ArgsUsage: `<backend> <name> <entry-name>`,
			Flags:     []cli.Flag{xsiIDFlag()},
			Action: func(c *cli.Context) {
				entryName := c.Args().Get(2)

				withOpenFacade(c, func(f facade) {
					found, err := f.Find(entryName)

					switch {
					case ipcerr.Is(err, ipcerr.TypeMismatch):
						fmt.Println(`type mismatch`)
					case err != nil:
						log.Fatalf("Failed to look up %q: %v", entryName, err)
					case !found:
						fmt.Println(`not found`)
					default:
						fmt.Printf("found %q\n", entryName)
					}
				})
			},
		}, {
			Name:      `destroy`,
			Usage:     `Remove an entry from a managed segment`,
			ArgsUsage: `<backend> <name> <entry-name>`,
			Flags:     []cli.Flag{xsiIDFlag()},
			Action: func(c *cli.Context) {
				entryName := c.Args().Get(2)

				withOpenFacade(c, func(f facade) {
					if err := f.Destroy(entryName); err != nil {
						log.Fatalf("Failed to destroy %q: %v", entryName, err)
					}

					log.Infof("Destroyed %q", entryName)
				})
			},
		}, {
			Name:      `inspect`,
			Usage:     `Print bookkeeping for a managed segment`,
			ArgsUsage: `<backend> <name>`,
			Flags:     []cli.Flag{xsiIDFlag()},
			Action: func(c *cli.Context) {
				withOpenFacade(c, func(f facade) {
					stats := f.Stats()

					fmt.Printf("segment_bytes:   %s\n", typeutil.V(stats.SegmentBytes).String())
					fmt.Printf("allocated_bytes: %s\n", typeutil.V(stats.AllocatedBytes).String())
					fmt.Printf("free_bytes:      %s\n", typeutil.V(stats.FreeBytes).String())
					fmt.Printf("free_blocks:     %s\n", typeutil.V(stats.FreeBlockCount).String())
					fmt.Printf("directory:       %s / %s\n",
						typeutil.V(stats.DirectoryLen).String(), typeutil.V(stats.DirectoryCap).String())
				})
			},
		}, {
			Name:      `rm`,
			Usage:     `Remove the backing store for a segment`,
			ArgsUsage: `<backend> <name>`,
			Flags:     []cli.Flag{xsiIDFlag()},
			Action: func(c *cli.Context) {
				backend := c.Args().First()
				name := c.Args().Get(1)

				var err error

				switch backend {
				case `posix`:
					err = region.Unlink(name)
				case `file`:
					err = os.Remove(name)
				case `xsi`:
					var shmid int

					if shmid, err = strconv.Atoi(c.String(`xsi-id`)); err == nil {
						err = region.DestroySegment(shmid)
					}
				default:
					log.Fatalf("Unknown backend %q", backend)
					return
				}

				if err != nil {
					log.Fatalf("Failed to remove %q: %v", name, err)
				}

				log.Infof("Removed %s:%s", backend, name)
			},
		},
	}

	app.Run(os.Args)
}
