package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"multiatlas3d/pkg/config"
	"multiatlas3d/pkg/dataset"
	"multiatlas3d/pkg/visualization"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	targetPattern := flag.String("targets", "", "Override the target search pattern from the config")
	atlasPattern := flag.String("atlases", "", "Override the atlas search pattern from the config")
	index := flag.Int("index", -1, "Assemble only the sample at this index")
	batchSize := flag.Int("batch", 1, "Number of samples collated per batch when walking the dataset")
	limit := flag.Int("limit", 0, "Stop after this many samples (0 = all)")
	dumpDir := flag.String("dump", "", "Directory for PNG slice previews of assembled samples")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.SaveConfig(config.DefaultConfig(), *configPath); err != nil {
			logrus.Fatalf("writing default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("loading config: %v", err)
	}
	if !cfg.Output.Verbose {
		logrus.SetLevel(logrus.WarnLevel)
	}
	if *targetPattern != "" {
		cfg.Data.TargetPattern = *targetPattern
	}
	if *atlasPattern != "" {
		cfg.Data.AtlasPattern = *atlasPattern
	}
	if *dumpDir != "" {
		cfg.Output.DumpDir = *dumpDir
	}
	if cfg.Data.TargetPattern == "" {
		flag.Usage()
		os.Exit(1)
	}

	opts, err := cfg.Options()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}

	ds, err := dataset.New(opts)
	if err != nil {
		logrus.Fatalf("building dataset: %v", err)
	}
	logrus.Infof("dataset holds %d target/atlas pairs", ds.Len())

	if *index >= 0 {
		if err := runOne(ds, cfg.Output.DumpDir, *index); err != nil {
			logrus.Fatalf("sample %d: %v", *index, err)
		}
		return
	}

	total := ds.Len()
	if *limit > 0 && *limit < total {
		total = *limit
	}

	start := time.Now()
	samples := make([]*dataset.Sample, 0, *batchSize)
	for i := 0; i < total; i++ {
		s, err := ds.Sample(i)
		if err != nil {
			logrus.Fatalf("sample %d (%s): %v", i, ds.Key(i).Target, err)
		}
		if cfg.Output.DumpDir != "" {
			if err := visualization.SaveSampleSlices(s, cfg.Output.DumpDir, fmt.Sprintf("sample_%04d", i)); err != nil {
				logrus.Warnf("dumping sample %d: %v", i, err)
			}
		}
		samples = append(samples, s)
		if len(samples) == *batchSize {
			flushBatch(samples, i)
			samples = samples[:0]
		}
	}
	if len(samples) > 0 {
		flushBatch(samples, total-1)
	}
	logrus.Infof("assembled %d samples in %.2fs", total, time.Since(start).Seconds())
}

func runOne(ds *dataset.Dataset, dumpDir string, index int) error {
	if index >= ds.Len() {
		return fmt.Errorf("index %d out of range, dataset holds %d samples", index, ds.Len())
	}
	key := ds.Key(index)
	logrus.Infof("target: %s", key.Target)
	for _, a := range key.Atlases {
		logrus.Infof("atlas:  %s", a)
	}
	s, err := ds.Sample(index)
	if err != nil {
		return err
	}
	logrus.Infof("target image shape %v, label shape %v", s.TargetImage.Shape, s.TargetLabel.Shape)
	logrus.Infof("atlas image shape %v, label shape %v", s.AtlasImage.Shape, s.AtlasLabel.Shape)
	logrus.Infof("center percent %.3f", s.CenterPercent)
	if dumpDir != "" {
		return visualization.SaveSampleSlices(s, dumpDir, fmt.Sprintf("sample_%04d", index))
	}
	return nil
}

func flushBatch(samples []*dataset.Sample, lastIndex int) {
	batch, err := dataset.Collate(samples)
	if err != nil {
		logrus.Fatalf("collating batch ending at %d: %v", lastIndex, err)
	}
	logrus.Infof("batch of %d: target image %v, atlas image %v",
		len(samples), batch.TargetImage.Shape, batch.AtlasImage.Shape)
}
