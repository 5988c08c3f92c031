package mcpserver

// WorkspaceFormat describes the JSON documents a zensync workspace is driven
// by, so that LLM consumers can edit metadata without guessing the layout.
const WorkspaceFormat = `# zensync Workspace Format

A workspace is a directory holding PDFs to publish and three JSON documents.
All paths are relative to the workspace root.

## zenodo.json (base metadata)

A single JSON object copied into the deposition metadata of every file.
Any Zenodo deposit metadata key is allowed (creators, access_right,
communities, ...). A missing or unreadable document counts as ` + "`{}`" + `.

` + "```" + `json
{
  "title": "Quarterly report",
  "creators": [{"name": "Doe, Jane", "affiliation": "ACME"}],
  "access_right": "open"
}
` + "```" + `

## zenodo.files.json (per-file overrides)

A JSON object keyed by file path (e.g. ` + "`out/report.pdf`" + `). Only three
keys of an entry are used: ` + "`title`" + `, ` + "`description`" + ` and ` + "`keywords`" + `.

## Derived fields

- ` + "`title`" + `: the override title verbatim when present, otherwise
  "<base title>: <file name>".
- ` + "`description`" + `, ` + "`keywords`" + `: the override value replaces the base value.
- ` + "`upload_type`" + ` defaults to "publication", ` + "`publication_type`" + ` to "report",
  ` + "`license`" + ` to "CC-BY-4.0".
- ` + "`publication_date`" + ` is always today's date (YYYY-MM-DD).

## .zenodo_state.json (publication state)

Written by zensync only. Maps each file path to its concept DOI:

` + "```" + `json
{
  "out/report.pdf": {"conceptdoi": "10.5281/zenodo.1234567"}
}
` + "```" + `

A file with a concept DOI gets a new version of that concept on the next
sync; a file without one gets a new deposition. Removing an entry starts a
new lineage.
`
