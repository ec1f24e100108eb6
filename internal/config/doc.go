// Package config loads SkillVet configuration from local and global YAML files
// and SKILLVET_* environment variables. It is internal; CLI code applies the
// precedence CLI > local > global when mapping them into scan options.
package config
