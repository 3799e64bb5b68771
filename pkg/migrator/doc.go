// Package migrator loads migration units from disk.
//
// A migration unit is a directory holding a descriptor and a pair of scripts:
//
//	versions/
//	  a1b2c3--create-users/
//	    info.toml       # version, previous_version, message, creation_date
//	    upgrade.sql     # applied when moving forward through the unit
//	    downgrade.sql   # applied when moving back past the unit
//
// The directory name is either the revision itself or the revision followed by
// "--" and a free-form slug. The descriptor may be written as TOML (info.toml),
// YAML (info.yaml or info.yml) or JSON (info.json); exactly one must be present.
//
// Loading only validates individual units and revision uniqueness. Ordering the
// units into a chain, and detecting cycles, branches and dangling parents, is the
// job of the chain package.
//
// Example usage:
//
//	units, err := migrator.LoadDir(os.DirFS("versions"))
//	if err != nil {
//		var loadErr *migrator.LoadError
//		if errors.As(err, &loadErr) {
//			log.Fatalf("bad unit at %s: %v", loadErr.Path, loadErr.Err)
//		}
//		log.Fatal(err)
//	}
//
//	for _, u := range units {
//		fmt.Printf("%s -> %s: %s\n", u.Parent, u.Revision, u.Message)
//	}
package migrator
