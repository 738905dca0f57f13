package devbackend

import "fmt"

type line struct {
	Log  string
	Type string
}

func info(format string, args ...any) line {
	return line{Log: fmt.Sprintf(format, args...), Type: "info"}
}

func success(format string, args ...any) line {
	return line{Log: fmt.Sprintf(format, args...), Type: "success"}
}

// script returns the output a step produces before it completes.
func (b *Backend) script(step string) ([]line, bool) {
	o := b.opts
	switch step {
	case "enable-apis":
		out := []line{info("Enabling Batch, Compute, and Logging APIs...")}
		for _, api := range []string{"batch.googleapis.com", "compute.googleapis.com", "logging.googleapis.com"} {
			out = append(out, info("  Enabling %s...", api), success("  ✓ %s enabled", api))
		}
		return out, true
	case "create-sa":
		return []line{
			info("Creating service account: %s...", o.ServiceAccount),
			success("  Created: %s@%s.iam.gserviceaccount.com", o.ServiceAccount, o.Project),
		}, true
	case "iam-roles":
		out := []line{info("Adding IAM roles to service account...")}
		for _, role := range []string{"roles/batch.agentReporter", "roles/logging.logWriter", "roles/storage.objectAdmin"} {
			out = append(out, info("  Adding %s...", role), success("  ✓ %s granted", role))
		}
		return out, true
	case "create-network":
		return []line{
			info("Setting up VPC network for Google Batch..."),
			info("  ✓ Default VPC network already exists"),
			success("  ✓ Private Google Access enabled"),
			info("  Network: default (auto-subnets)"),
		}, true
	case "create-bucket":
		return []line{
			info("Creating GCS bucket: gs://%s...", o.Bucket),
			success("  Created bucket: gs://%s in %s", o.Bucket, o.Region),
			info("  Location: %s", o.Region),
		}, true
	case "write-config":
		return []line{
			info("Writing nextflow.config..."),
			success("  Written to: nextflow.config"),
			info("  workDir: gs://%s/scratch", o.Bucket),
			info("  executor: google-batch"),
			info("  region: %s", o.Region),
		}, true
	case "launch-pipeline":
		return []line{
			info("Launching Nextflow RNAseq pipeline on Google Cloud Batch..."),
			info("Command: nextflow run nextflow-io/rnaseq-nf -c nextflow.config"),
		}, true
	case "fastqc", "quant", "multiqc":
		return []line{info("Checking Google Batch jobs..."), info("  Found 0 jobs")}, true
	case "results":
		return []line{info("Listing results in gs://%s...", o.Bucket), info("  Found 0 files in scratch/")}, true
	}
	return nil, false
}

// stages is the simulated progression of the external pipeline, one entry
// per Advance.
var stages = []map[string]string{
	{"fastqc": "running", "quant": "running"},
	{"fastqc": "complete", "quant": "running"},
	{"fastqc": "complete", "quant": "complete", "multiqc": "running"},
	{"fastqc": "complete", "quant": "complete", "multiqc": "complete", "results": "running"},
	{"fastqc": "complete", "quant": "complete", "multiqc": "complete", "results": "complete"},
}

var pipelineTasks = []string{"fastqc", "quant", "multiqc", "results"}
