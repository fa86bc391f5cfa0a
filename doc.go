/***Dedicated to the long life of the Ven. Khenpo Phuntzok Tenzin Rinpoche***/

/*Package matflow is the root package of the matflow library. It provides periodic crystal
structures, compositions, atomic data, and readers/writers for the files used to set up
plane-wave DFT calculations.

The subpackages cover the rest of the high-throughput cycle:


	**matflow Capabilities**

    Crystal structures with lattices, fractional coordinates and site properties,
	serialized with the same layout pymatgen uses, so existing task collections
	can be read and written.

    Reads/writes POSCAR files, writes XYZ files.

    Fingerprint-based structure matching and deduplication (match).

    Enumeration of cation substitutions on a template structure (enum).

    VASP input sets for relaxations and static calculations (vasp).

    Workflows made of fireworks, with the usual "powerups" (wf), and a launchpad to
	submit them to (launchpad), on top of a generic document store with Mongo,
	Postgres, SQLite and in-memory backends (store).

    Bader charge analysis and oxidation-state decoration (bader).

    Retrieval of structures from the Materials Project REST API (mpapi).

    Export of simplified task documents for collaborators (perovskite).

    Maintenance of elastic-constant workflows (elastic).

    Campaign files that describe which structures to generate and submit (campaign).

    Compressed dumps and S3 uploads (archive), run counters (metrics) and quick
    plots of structures and results (chemplot).


Many functions panic instead of returning errors when the only possible failure is a
programming error (e.g. an out of range index produced by the caller's own loop).
Functions that fail on user data return errors, which implement Decorator.
*/
package matflow
