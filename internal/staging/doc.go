// Package staging manages per-cycle scratch directories under work_dir.
package staging
