/*
Package component acquires the external components environments run on.

A Catalog lists the components (built-in YAML manifest, or a YAML, TOML or
JSON file) and fixes where each artifact is downloaded and staged. The
Pipeline runs the fetch and stage steps per component in manifest order:
components already staged are skipped, an optional component's failure is
logged and the run continues, and a required component's failure aborts the
run. Concurrent acquisitions of one component share a single flight.

Progress is tracked per component (downloaded bytes map onto 0..90, staging
starts at 90, ready is 100) and every change is published as a progress
event.
*/
package component
