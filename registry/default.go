package registry

// Default returns the Nextflow on Google Batch workload: sequential cloud
// setup, a handoff once the Nextflow config is written, then the externally
// launched RNAseq pipeline observed by polling.
func Default() (*Registry, Plan) {
	r, err := New([]Step{
		{ID: "enable-apis", Label: "Enable APIs", Phase: PhaseSetup},
		{ID: "create-sa", Label: "Create service account", Phase: PhaseSetup, Needs: []string{"enable-apis"}},
		{ID: "iam-roles", Label: "Grant IAM roles", Phase: PhaseSetup, Needs: []string{"create-sa"}},
		{ID: "create-network", Label: "Configure VPC network", Phase: PhaseSetup, Needs: []string{"iam-roles"}},
		{ID: "create-bucket", Label: "Create GCS bucket", Phase: PhaseSetup, Needs: []string{"create-network"}},
		{ID: "write-config", Label: "Write nextflow.config", Phase: PhaseSetup, Needs: []string{"create-bucket"}},
		{ID: "launch-pipeline", Label: "Nextflow pipeline", Phase: PhasePipeline, Needs: []string{"write-config"}},
		{ID: "fastqc", Label: "FastQC", Phase: PhasePipeline, Needs: []string{"launch-pipeline"}},
		{ID: "quant", Label: "Salmon quant", Phase: PhasePipeline, Needs: []string{"launch-pipeline"}},
		{ID: "multiqc", Label: "MultiQC", Phase: PhasePipeline, Needs: []string{"fastqc", "quant"}},
		{ID: "results", Label: "Results", Phase: PhasePipeline, Needs: []string{"multiqc"}},
	})
	if err != nil {
		panic(err)
	}

	plan := Plan{
		Phases: []PlanPhase{
			{
				Name:  "setup",
				Mode:  ModeSequential,
				Steps: []string{"enable-apis", "create-sa", "iam-roles", "create-network", "create-bucket"},
			},
		},
		Handoff: &Handoff{
			Step:      "write-config",
			Await:     []string{"launch-pipeline", "fastqc", "quant", "multiqc", "results"},
			Tasks:     []string{"fastqc", "quant", "multiqc", "results"},
			Composite: "launch-pipeline",
			Bucket:    "create-bucket",
		},
	}
	if err := plan.Validate(r); err != nil {
		panic(err)
	}

	return r, plan
}
